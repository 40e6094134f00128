package contracts

import (
	"context"

	"github.com/julienschmidt/httprouter"
)

// Handler mounts a feature's routes on the shared router.
type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// HealthCheck checks one dependency. A nil error means it is usable.
type HealthCheck func(ctx context.Context) error
