package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

func openTestBolt(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	db, err := OpenBolt(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	st := NewBoltStore(db, zap.NewNop())
	t.Cleanup(func() { st.Close() })
	return st, path
}

func boltProduct(name string, price float64) *domain.Product {
	return &domain.Product{
		ID:           uuid.New(),
		Name:         name,
		Price:        price,
		Quantity:     5,
		Rating:       domain.DefaultRating,
		LastModified: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestBoltUpsertAndGet(t *testing.T) {
	st, _ := openTestBolt(t)
	ctx := context.Background()

	milk := boltProduct("Milk", 1.49)
	if err := st.Upsert(ctx, milk); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := st.GetByID(ctx, milk.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != milk.Name || got.Price != milk.Price || got.Quantity != milk.Quantity {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, milk)
	}

	// Upsert with the same ID fully replaces the record.
	milk.Price = 1.99
	milk.IsFeatured = true
	if err := st.Upsert(ctx, milk); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, err = st.GetByID(ctx, milk.ID)
	if err != nil {
		t.Fatalf("get after replace failed: %v", err)
	}
	if got.Price != 1.99 || !got.IsFeatured {
		t.Fatalf("expected replaced record, got %+v", got)
	}
}

func TestBoltGetMissingReturnsNotFound(t *testing.T) {
	st, _ := openTestBolt(t)

	_, err := st.GetByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got: %v", err)
	}
}

func TestBoltDeleteAbsentIsNoop(t *testing.T) {
	st, _ := openTestBolt(t)

	if err := st.Delete(context.Background(), uuid.New()); err != nil {
		t.Fatalf("expected nil deleting an absent record, got: %v", err)
	}
}

func TestBoltListOrdersByName(t *testing.T) {
	st, _ := openTestBolt(t)
	ctx := context.Background()

	for _, name := range []string{"Cheese", "Apples", "Bread"} {
		if err := st.Upsert(ctx, boltProduct(name, 1.00)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 products, got %d", len(all))
	}
	for i, want := range []string{"Apples", "Bread", "Cheese"} {
		if all[i].Name != want {
			t.Fatalf("expected %q at position %d, got %q", want, i, all[i].Name)
		}
	}
}

func TestBoltObserveAllDeliversSnapshots(t *testing.T) {
	st, _ := openTestBolt(t)
	ctx := context.Background()

	milk := boltProduct("Milk", 1.49)
	if err := st.Upsert(ctx, milk); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	sub := st.ObserveAll(ctx)
	defer sub.Cancel()

	// The initial snapshot arrives without any further writes.
	select {
	case snapshot := <-sub.C:
		if len(snapshot) != 1 || snapshot[0].ID != milk.ID {
			t.Fatalf("unexpected initial snapshot: %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}

	bread := boltProduct("Bread", 2.00)
	if err := st.Upsert(ctx, bread); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	select {
	case snapshot := <-sub.C:
		if len(snapshot) != 2 {
			t.Fatalf("expected snapshot of 2 after write, got %d", len(snapshot))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change snapshot")
	}
}

func TestBoltObserverKeepsLatestSnapshotOnly(t *testing.T) {
	st, _ := openTestBolt(t)
	ctx := context.Background()

	sub := st.ObserveAll(ctx)
	defer sub.Cancel()

	// Drain the initial empty snapshot.
	<-sub.C

	// A slow observer misses intermediate snapshots but always sees the
	// latest one.
	names := []string{"Apples", "Bread", "Cheese", "Dates"}
	for _, name := range names {
		if err := st.Upsert(ctx, boltProduct(name, 1.00)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for {
		select {
		case snapshot := <-sub.C:
			if len(snapshot) == len(names) {
				return
			}
		case <-deadline:
			t.Fatal("never observed the final snapshot")
		}
	}
}

func TestBoltObserverCancelStopsDelivery(t *testing.T) {
	st, _ := openTestBolt(t)
	ctx := context.Background()

	sub := st.ObserveAll(ctx)
	<-sub.C
	sub.Cancel()

	// Writes after cancellation must not block.
	for i := 0; i < 5; i++ {
		if err := st.Upsert(ctx, boltProduct("Milk", 1.00)); err != nil {
			t.Fatalf("upsert after cancel failed: %v", err)
		}
	}

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected channel closed after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel closed after cancel")
	}
}

func TestBoltSchemaMismatchDestroysData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	db, err := OpenBolt(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	st := NewBoltStore(db, zap.NewNop())

	milk := boltProduct("Milk", 1.49)
	if err := st.Upsert(context.Background(), milk); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Rewrite the stored schema version to simulate a layout change.
	raw, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("failed to reopen raw bolt file: %v", err)
	}
	err = raw.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(versionKey, []byte("0"))
	})
	if err != nil {
		t.Fatalf("failed to tamper schema version: %v", err)
	}
	raw.Close()

	db, err = OpenBolt(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to reopen bolt store: %v", err)
	}
	st = NewBoltStore(db, zap.NewNop())
	defer st.Close()

	// The mismatch wiped everything; the store starts empty.
	all, err := st.List(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store after schema destroy, got %d records", len(all))
	}
	if _, err := st.GetByID(context.Background(), milk.ID); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected old record gone, got: %v", err)
	}
}
