package mirror

import (
	"context"

	"shopsync/internal/domain"

	"github.com/google/uuid"
)

// disabledClient is the mirror used when no remote endpoint is configured.
// Writes succeed without going anywhere, pulls return nothing, and
// subscriptions never deliver. The engine runs local-only against it.
type disabledClient struct{}

// Disabled returns a Client for deployments without a remote mirror.
func Disabled() Client {
	return disabledClient{}
}

func (disabledClient) Upsert(ctx context.Context, userID uuid.UUID, product *domain.Product) error {
	return nil
}

func (disabledClient) Delete(ctx context.Context, userID uuid.UUID, productID uuid.UUID) error {
	return nil
}

func (disabledClient) FetchAll(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	return nil, nil
}

func (disabledClient) Subscribe(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	events := make(chan []domain.ChangeEvent)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return NewSubscription(events, cancel), nil
}
