package mirror

import (
	"context"
	"sync"

	"shopsync/internal/domain"

	"github.com/google/uuid"
)

// Client is the per-user remote document collection mirroring the local
// product store. The logical layout is users/{userID}/products/{productID}.
// Every operation may fail (network, permission); callers treat failure as
// recoverable and never let it block local state.
type Client interface {
	// Upsert writes the product document under the user's collection.
	Upsert(ctx context.Context, userID uuid.UUID, product *domain.Product) error

	// Delete removes the product document. Absent documents are not an
	// error.
	Delete(ctx context.Context, userID uuid.UUID, productID uuid.UUID) error

	// FetchAll pulls the user's entire remote set.
	FetchAll(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error)

	// Subscribe starts delivering remote change-event batches for the
	// user's collection. Batches preserve the provider's delivery order;
	// no ordering is guaranteed across batches. The subscription stays
	// active until cancelled, which callers must do at session end to
	// avoid leaking events into the next session.
	Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// Subscription is a cancellable stream of remote change-event batches.
type Subscription struct {
	C <-chan []domain.ChangeEvent

	cancelOnce sync.Once
	stop       func()
}

// NewSubscription wraps an event channel and its stop function. The stop
// function must cause the producer to close the channel.
func NewSubscription(events <-chan []domain.ChangeEvent, stop func()) *Subscription {
	return &Subscription{C: events, stop: stop}
}

// Cancel stops event delivery. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(s.stop)
}
