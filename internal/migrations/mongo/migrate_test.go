package mongo

import (
	bookingsrepo "letsplay/internal/bookings/repository"
	joinsrepo "letsplay/internal/joins/repository"
	notificationsrepo "letsplay/internal/notifications/repository"
	sagarepo "letsplay/internal/saga/repository"
	"testing"
)

func TestCollections_CoverRepositories(t *testing.T) {
	collections := Collections()
	for _, name := range []string{
		bookingsrepo.CollectionName,
		bookingsrepo.ReservationCollectionName,
		joinsrepo.CollectionName,
		sagarepo.RunsCollectionName,
		sagarepo.LocksCollectionName,
		notificationsrepo.CollectionName,
	} {
		def, ok := collections[name]
		if !ok {
			t.Errorf("collection %s has no migration", name)
			continue
		}
		if len(def.Indexes) == 0 {
			t.Errorf("collection %s has no indexes", name)
		}
	}
}

func TestJoinRequestsIndexes_PendingUnique(t *testing.T) {
	opts := JoinRequestsIndexes[0].Options
	if opts == nil || opts.Unique == nil || !*opts.Unique {
		t.Fatal("first join request index must be unique")
	}
	if opts.PartialFilterExpression == nil {
		t.Fatal("pending uniqueness must be a partial index")
	}
}
