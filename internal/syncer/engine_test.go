package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shopsync/internal/domain"
	"shopsync/internal/mirror"
	"shopsync/internal/session"
	"shopsync/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeMirror is an in-memory mirror.Client with injectable failures and a
// push channel for realtime tests.
type fakeMirror struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]map[uuid.UUID]*domain.Product
	failWith error

	events chan []domain.ChangeEvent
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{
		docs:   make(map[uuid.UUID]map[uuid.UUID]*domain.Product),
		events: make(chan []domain.ChangeEvent, 16),
	}
}

func (m *fakeMirror) userDocs(userID uuid.UUID) map[uuid.UUID]*domain.Product {
	if m.docs[userID] == nil {
		m.docs[userID] = make(map[uuid.UUID]*domain.Product)
	}
	return m.docs[userID]
}

func (m *fakeMirror) Upsert(ctx context.Context, userID uuid.UUID, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	clone := *product
	m.userDocs(userID)[product.ID] = &clone
	return nil
}

func (m *fakeMirror) Delete(ctx context.Context, userID uuid.UUID, productID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.userDocs(userID), productID)
	return nil
}

func (m *fakeMirror) FetchAll(ctx context.Context, userID uuid.UUID) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*domain.Product
	for _, p := range m.userDocs(userID) {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

func (m *fakeMirror) Subscribe(ctx context.Context, userID uuid.UUID) (*mirror.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	events := m.events
	return mirror.NewSubscription(events, func() { close(events) }), nil
}

func (m *fakeMirror) stored(userID, productID uuid.UUID) (*domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.userDocs(userID)[productID]
	return p, ok
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := store.OpenBolt(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	st := store.NewBoltStore(db, zap.NewNop())
	t.Cleanup(func() { st.Close() })
	return st
}

func sessionContext(userID uuid.UUID) context.Context {
	return session.NewContext(context.Background(), session.Session{
		UserID:    userID,
		Role:      "user",
		StartedAt: time.Now(),
	})
}

func product(name string, price float64, quantity int) *domain.Product {
	return &domain.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    price,
		Quantity: quantity,
		Rating:   domain.DefaultRating,
	}
}

func TestInsertIsVisibleLocallyBeforeRemoteCompletes(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	engine := NewEngine(st, fm, zap.NewNop())

	userID := uuid.New()
	ctx := sessionContext(userID)

	milk := product("Milk", 1.49, 10)
	if err := engine.Insert(ctx, milk); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// Local read succeeds regardless of the detached remote leg.
	got, err := engine.GetByID(ctx, milk.ID)
	if err != nil {
		t.Fatalf("local read after insert failed: %v", err)
	}
	if got.Name != "Milk" {
		t.Fatalf("unexpected product: %+v", got)
	}

	engine.Wait()
	if _, ok := fm.stored(userID, milk.ID); !ok {
		t.Fatal("expected product mirrored remotely after Wait")
	}
	if engine.Status() != StatusSynced {
		t.Fatalf("expected status synced, got %q", engine.Status())
	}
}

func TestRemoteFailureNeverSurfacesToCaller(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	fm.failWith = errors.New("network down")
	engine := NewEngine(st, fm, zap.NewNop())

	ctx := sessionContext(uuid.New())
	milk := product("Milk", 1.49, 10)

	if err := engine.Insert(ctx, milk); err != nil {
		t.Fatalf("insert must succeed despite remote failure, got: %v", err)
	}

	engine.Wait()
	if engine.Status() != StatusDegraded {
		t.Fatalf("expected status degraded, got %q", engine.Status())
	}

	// The local store kept the write.
	if _, err := engine.GetByID(ctx, milk.ID); err != nil {
		t.Fatalf("local state lost after remote failure: %v", err)
	}
}

func TestMutationsWithoutSessionSkipRemote(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	engine := NewEngine(st, fm, zap.NewNop())

	ctx := context.Background()
	milk := product("Milk", 1.49, 10)

	if err := engine.Insert(ctx, milk); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	engine.Wait()

	fm.mu.Lock()
	remoteUsers := len(fm.docs)
	fm.mu.Unlock()
	if remoteUsers != 0 {
		t.Fatal("expected no remote writes without a session")
	}
	if engine.Status() != StatusIdle {
		t.Fatalf("expected status idle, got %q", engine.Status())
	}
}

func TestUpdateStampsLastModified(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, newFakeMirror(), zap.NewNop())

	milk := product("Milk", 1.49, 10)
	before := time.Now().UTC()
	if err := engine.Update(context.Background(), milk); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := engine.GetByID(context.Background(), milk.ID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got.LastModified.Before(before) {
		t.Fatalf("expected LastModified stamped at update time, got %v", got.LastModified)
	}
}

func TestDeleteAbsentProductIsNoop(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, newFakeMirror(), zap.NewNop())

	if err := engine.Delete(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected deleting an absent product to succeed, got: %v", err)
	}
}

func TestPullFromRemoteMergesWithoutDeleting(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	engine := NewEngine(st, fm, zap.NewNop())

	userID := uuid.New()
	ctx := sessionContext(userID)

	// Local has A and B. Remote has a newer A and a C unknown locally.
	productA := product("Apples", 1.00, 5)
	productB := product("Bread", 2.00, 3)
	for _, p := range []*domain.Product{productA, productB} {
		if err := st.Upsert(ctx, p); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	remoteA := *productA
	remoteA.Price = 1.25
	productC := product("Cheese", 6.50, 2)
	fm.userDocs(userID)[remoteA.ID] = &remoteA
	fm.userDocs(userID)[productC.ID] = productC

	if err := engine.PullFromRemote(ctx); err != nil {
		t.Fatalf("pull failed: %v", err)
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected merged set of 3, got %d", len(all))
	}

	gotA, err := st.GetByID(ctx, productA.ID)
	if err != nil {
		t.Fatalf("read A failed: %v", err)
	}
	if gotA.Price != 1.25 {
		t.Fatalf("expected remote record to overwrite local, price %.2f", gotA.Price)
	}

	// B only exists locally and pull must not reconcile deletes.
	if _, err := st.GetByID(ctx, productB.ID); err != nil {
		t.Fatalf("local-only record removed by pull: %v", err)
	}
	if engine.Status() != StatusSynced {
		t.Fatalf("expected status synced, got %q", engine.Status())
	}
}

func TestPullFromRemoteAbsorbsRemoteFailure(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	fm.failWith = errors.New("unreachable")
	engine := NewEngine(st, fm, zap.NewNop())

	if err := engine.PullFromRemote(sessionContext(uuid.New())); err != nil {
		t.Fatalf("pull must absorb remote failure, got: %v", err)
	}
	if engine.Status() != StatusDegraded {
		t.Fatalf("expected status degraded, got %q", engine.Status())
	}
}

func TestPullFromRemoteWithoutSessionIsNoop(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, newFakeMirror(), zap.NewNop())

	if err := engine.PullFromRemote(context.Background()); err != nil {
		t.Fatalf("expected no-op pull, got: %v", err)
	}
	if engine.Status() != StatusIdle {
		t.Fatalf("expected status idle, got %q", engine.Status())
	}
}

func TestRealtimeSyncAppliesRemoteEvents(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	engine := NewEngine(st, fm, zap.NewNop())

	ctx := sessionContext(uuid.New())
	handle, err := engine.StartRealtimeSync(ctx)
	if err != nil {
		t.Fatalf("failed to start realtime sync: %v", err)
	}

	milk := product("Milk", 1.49, 10)
	fm.events <- []domain.ChangeEvent{{Kind: domain.ChangeAdded, Product: *milk}}

	waitFor(t, func() bool {
		_, err := st.GetByID(ctx, milk.ID)
		return err == nil
	}, "added event applied")

	changed := *milk
	changed.Price = 1.99
	fm.events <- []domain.ChangeEvent{{Kind: domain.ChangeModified, Product: changed}}

	waitFor(t, func() bool {
		got, err := st.GetByID(ctx, milk.ID)
		return err == nil && got.Price == 1.99
	}, "modified event applied")

	fm.events <- []domain.ChangeEvent{{Kind: domain.ChangeRemoved, Product: *milk}}

	waitFor(t, func() bool {
		_, err := st.GetByID(ctx, milk.ID)
		return errors.Is(err, store.ErrProductNotFound)
	}, "removed event applied")

	waitFor(t, func() bool {
		return engine.Status() == StatusLiveUpdate
	}, "status to report the live update")

	handle.Stop()
}

func TestRealtimeSyncStopsCleanly(t *testing.T) {
	st := newTestStore(t)
	fm := newFakeMirror()
	engine := NewEngine(st, fm, zap.NewNop())

	handle, err := engine.StartRealtimeSync(sessionContext(uuid.New()))
	if err != nil {
		t.Fatalf("failed to start realtime sync: %v", err)
	}

	// Stop must return once the applier drained, and be safe to repeat.
	handle.Stop()
	handle.Stop()
}

func TestRealtimeSyncWithoutSessionIsNoop(t *testing.T) {
	st := newTestStore(t)
	engine := NewEngine(st, newFakeMirror(), zap.NewNop())

	handle, err := engine.StartRealtimeSync(context.Background())
	if err != nil {
		t.Fatalf("expected no-op start, got: %v", err)
	}
	if handle != nil {
		t.Fatal("expected nil handle without a session")
	}

	// A nil handle is still safe to stop.
	handle.Stop()
}

func waitFor(t *testing.T, cond func() bool, desc string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", desc)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
