package store

import (
	"context"
	"errors"

	"shopsync/internal/domain"

	"github.com/google/uuid"
)

// ErrProductNotFound is returned by GetByID for an absent ID. Delete
// never returns it: deleting an absent record is a no-op.
var ErrProductNotFound = errors.New("product not found")

// Store is the local, durable product store. It is the single source of
// truth the rest of the application reads; the remote mirror only ever
// catches up with it. Mutations appear atomic to concurrent readers, and
// every successful mutation is followed by a fresh snapshot broadcast to
// all ObserveAll subscribers.
type Store interface {
	// Upsert inserts the product or fully replaces the record sharing its
	// ID. Idempotent on both paths.
	Upsert(ctx context.Context, product *domain.Product) error

	// Delete removes the record with the given ID. Absent ID is a no-op,
	// not an error.
	Delete(ctx context.Context, id uuid.UUID) error

	// GetByID returns the stored product or ErrProductNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)

	// List returns the full current set.
	List(ctx context.Context) ([]*domain.Product, error)

	// ObserveAll returns a subscription that receives the full product set
	// after every change, starting with the current snapshot. Delivery is
	// latest-wins: a slow consumer skips intermediate snapshots and never
	// blocks writers. The subscription ends when cancelled or when ctx is
	// done.
	ObserveAll(ctx context.Context) *Subscription

	Close() error
}
