package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"shopsync/internal/domain"
	"shopsync/internal/mirror"
	"shopsync/internal/session"
	"shopsync/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the informational sync state surfaced to the UI. It never
// gates interaction: the local store is always the state the UI renders.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSyncing    Status = "syncing"
	StatusSynced     Status = "synced"
	StatusDegraded   Status = "degraded"
	StatusLiveUpdate Status = "update received"
)

// DefaultRemoteTimeout bounds each detached remote write.
const DefaultRemoteTimeout = 10 * time.Second

// Engine keeps the local store authoritative while opportunistically
// mirroring every mutation to the per-user remote collection. Local writes
// are applied and visible before the remote leg is even issued; the remote
// leg runs detached and its failure is logged, reflected in Status, and
// never returned to the caller. When the context carries no session, remote
// work is skipped entirely.
type Engine struct {
	store         store.Store
	mirror        mirror.Client
	logger        *zap.Logger
	remoteTimeout time.Duration

	status atomic.Value // Status

	// inflight tracks detached remote writes so shutdown and tests can
	// drain them.
	inflight sync.WaitGroup
}

// NewEngine creates an Engine over the given store and mirror client.
func NewEngine(st store.Store, mc mirror.Client, logger *zap.Logger) *Engine {
	e := &Engine{
		store:         st,
		mirror:        mc,
		logger:        logger,
		remoteTimeout: DefaultRemoteTimeout,
	}
	e.status.Store(StatusIdle)
	return e
}

// Status returns the current informational sync state.
func (e *Engine) Status() Status {
	return e.status.Load().(Status)
}

func (e *Engine) setStatus(s Status) {
	e.status.Store(s)
}

// Insert writes the product locally, then mirrors it remotely when a
// session exists. The caller sees only the local outcome.
func (e *Engine) Insert(ctx context.Context, product *domain.Product) error {
	if product.LastModified.IsZero() {
		product.LastModified = time.Now().UTC()
	}

	if err := e.store.Upsert(ctx, product); err != nil {
		return err
	}

	mirrored := *product
	e.mirrorWrite(ctx, "upsert", func(rctx context.Context, userID uuid.UUID) error {
		return e.mirror.Upsert(rctx, userID, &mirrored)
	})

	return nil
}

// Update stamps LastModified and follows the same write-through path as
// Insert.
func (e *Engine) Update(ctx context.Context, product *domain.Product) error {
	product.LastModified = time.Now().UTC()

	if err := e.store.Upsert(ctx, product); err != nil {
		return err
	}

	mirrored := *product
	e.mirrorWrite(ctx, "upsert", func(rctx context.Context, userID uuid.UUID) error {
		return e.mirror.Upsert(rctx, userID, &mirrored)
	})

	return nil
}

// Delete removes the product locally, then best-effort remotely.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	e.mirrorWrite(ctx, "delete", func(rctx context.Context, userID uuid.UUID) error {
		return e.mirror.Delete(rctx, userID, id)
	})

	return nil
}

// GetByID reads from the local store only.
func (e *Engine) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return e.store.GetByID(ctx, id)
}

// List reads the full local set.
func (e *Engine) List(ctx context.Context) ([]*domain.Product, error) {
	return e.store.List(ctx)
}

// ObserveAll exposes the store's live snapshot subscription.
func (e *Engine) ObserveAll(ctx context.Context) *store.Subscription {
	return e.store.ObserveAll(ctx)
}

// PullFromRemote fetches the session user's entire remote set and merges it
// into the local store: remote records overwrite local records sharing an
// ID, local-only records are left untouched, and no delete-reconciliation
// happens: a record deleted remotely while this node was offline survives
// locally until deleted again. Without a session the pull is skipped.
// Remote fetch failure is logged and absorbed; only local store failures
// are returned.
func (e *Engine) PullFromRemote(ctx context.Context) error {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil
	}

	e.setStatus(StatusSyncing)

	remote, err := e.mirror.FetchAll(ctx, sess.UserID)
	if err != nil {
		e.logger.Warn("Remote pull failed, keeping local state",
			zap.String("user_id", sess.UserID.String()),
			zap.Error(err),
		)
		e.setStatus(StatusDegraded)
		return nil
	}

	for _, product := range remote {
		if err := e.store.Upsert(ctx, product); err != nil {
			return err
		}
	}

	e.logger.Info("Pulled products from remote mirror",
		zap.String("user_id", sess.UserID.String()),
		zap.Int("count", len(remote)),
	)
	e.setStatus(StatusSynced)
	return nil
}

// RealtimeHandle stops a running realtime sync loop. A nil handle (no
// session at start time) is safe to stop.
type RealtimeHandle struct {
	sub  *mirror.Subscription
	done chan struct{}
}

// Stop cancels the subscription and waits for the applier to drain.
func (h *RealtimeHandle) Stop() {
	if h == nil {
		return
	}
	h.sub.Cancel()
	<-h.done
}

// StartRealtimeSync subscribes to the session user's remote changes and
// applies them to the local store as they arrive: added and modified events
// upsert, removed events delete. The applier runs until the handle is
// stopped or the context ends; its writes serialize through the store like
// any other writer, so a direct mutation racing a remote-originated one
// resolves to whichever the store observed last. Without a session this is
// a no-op.
func (e *Engine) StartRealtimeSync(ctx context.Context) (*RealtimeHandle, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, nil
	}

	sub, err := e.mirror.Subscribe(ctx, sess.UserID)
	if err != nil {
		e.logger.Warn("Failed to start realtime sync",
			zap.String("user_id", sess.UserID.String()),
			zap.Error(err),
		)
		e.setStatus(StatusDegraded)
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		applyCtx := context.WithoutCancel(ctx)

		for batch := range sub.C {
			for _, event := range batch {
				e.applyRemoteEvent(applyCtx, event)
			}
			e.setStatus(StatusLiveUpdate)
		}
	}()

	e.logger.Info("Realtime sync started", zap.String("user_id", sess.UserID.String()))
	return &RealtimeHandle{sub: sub, done: done}, nil
}

func (e *Engine) applyRemoteEvent(ctx context.Context, event domain.ChangeEvent) {
	var err error
	switch event.Kind {
	case domain.ChangeAdded, domain.ChangeModified:
		product := event.Product
		err = e.store.Upsert(ctx, &product)
	case domain.ChangeRemoved:
		err = e.store.Delete(ctx, event.Product.ID)
	default:
		e.logger.Warn("Ignoring unknown change kind", zap.String("kind", string(event.Kind)))
		return
	}

	if err != nil {
		e.logger.Error("Failed to apply remote change",
			zap.String("kind", string(event.Kind)),
			zap.String("product_id", event.Product.ID.String()),
			zap.Error(err),
		)
	}
}

// Wait drains all detached remote writes. Called at shutdown and by tests
// that need a deterministic remote outcome.
func (e *Engine) Wait() {
	e.inflight.Wait()
}

// mirrorWrite runs the remote leg of a mutation on a detached goroutine.
// The write uses a context that survives the caller's cancellation but is
// bounded by the engine's remote timeout.
func (e *Engine) mirrorWrite(ctx context.Context, op string, fn func(context.Context, uuid.UUID) error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return
	}

	e.setStatus(StatusSyncing)
	e.inflight.Add(1)

	go func() {
		defer e.inflight.Done()

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.remoteTimeout)
		defer cancel()

		if err := fn(rctx, sess.UserID); err != nil {
			e.logger.Warn("Remote mirror write failed, local state kept",
				zap.String("op", op),
				zap.String("user_id", sess.UserID.String()),
				zap.Error(err),
			)
			e.setStatus(StatusDegraded)
			return
		}

		e.setStatus(StatusSynced)
	}()
}
