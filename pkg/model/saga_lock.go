package model

import "time"

// SagaLock is a lease over one saga run. Only the owner may release it;
// an expired lease may be taken over by another worker.
type SagaLock struct {
	ID        string    `bson:"_id" json:"id"`
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
