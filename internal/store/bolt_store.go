package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// schemaVersion is the bolt store's record layout version. On a version
// bump the store is destroyed and recreated: all local data is lost, and
// the next remote pull repopulates it. Migration-preserving upgrades are an
// explicit non-goal.
const schemaVersion = "1"

var (
	productsBucket = []byte("products")
	metaBucket     = []byte("meta")
	versionKey     = []byte("schema_version")
)

// boltStore is the embedded Store implementation for single-node and
// on-device deployments: one bbolt file, JSON-encoded records keyed by
// product ID.
type boltStore struct {
	db       *bolt.DB
	logger   *zap.Logger
	notifier *notifier

	writeMu sync.Mutex
}

// OpenBolt opens (creating if needed) the bolt file at path and applies
// the schema policy: a version mismatch drops and recreates all buckets.
// The handle is shared by the product store and the bolt user repository.
func OpenBolt(path string, logger *zap.Logger) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}

		if v := meta.Get(versionKey); v != nil && string(v) != schemaVersion {
			logger.Warn("Bolt schema version changed, destroying local data",
				zap.String("stored", string(v)),
				zap.String("current", schemaVersion),
			)
			var stale [][]byte
			if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
				if string(name) != string(metaBucket) {
					stale = append(stale, name)
				}
				return nil
			}); err != nil {
				return err
			}
			for _, name := range stale {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}

		if err := meta.Put(versionKey, []byte(schemaVersion)); err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(productsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bolt store: %w", err)
	}

	return db, nil
}

// NewBoltStore creates the product Store on an opened bolt handle. Closing
// the store closes the handle.
func NewBoltStore(db *bolt.DB, logger *zap.Logger) Store {
	return &boltStore{
		db:       db,
		logger:   logger,
		notifier: newNotifier(),
	}
}

// Upsert inserts or fully replaces the record sharing the product's ID.
func (s *boltStore) Upsert(ctx context.Context, product *domain.Product) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	encoded, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(productsBucket).Put([]byte(product.ID.String()), encoded)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	s.changed(ctx)
	return nil
}

// Delete removes the record with the given ID; absent ID is a no-op.
func (s *boltStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(productsBucket)
		key := []byte(id.String())
		if bucket.Get(key) == nil {
			return nil
		}
		existed = true
		return bucket.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	if existed {
		s.changed(ctx)
	}
	return nil
}

// GetByID retrieves a product by ID.
func (s *boltStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var product *domain.Product

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(productsBucket).Get([]byte(id.String()))
		if raw == nil {
			return ErrProductNotFound
		}
		product = &domain.Product{}
		return json.Unmarshal(raw, product)
	})
	if err != nil {
		if err == ErrProductNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List returns the full current product set, ordered by name.
func (s *boltStore) List(ctx context.Context) ([]*domain.Product, error) {
	products := []*domain.Product{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(productsBucket).ForEach(func(_, raw []byte) error {
			product := &domain.Product{}
			if err := json.Unmarshal(raw, product); err != nil {
				return err
			}
			products = append(products, product)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})

	return products, nil
}

// ObserveAll subscribes to full-set snapshots.
func (s *boltStore) ObserveAll(ctx context.Context) *Subscription {
	current, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to load initial snapshot for observer", zap.Error(err))
		current = []*domain.Product{}
	}
	return s.notifier.subscribe(ctx, current)
}

func (s *boltStore) Close() error {
	s.notifier.closeAll()
	return s.db.Close()
}

// changed re-reads the set and broadcasts it. Called with writeMu held.
func (s *boltStore) changed(ctx context.Context) {
	snapshot, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to snapshot products after change", zap.Error(err))
		return
	}
	s.notifier.broadcast(snapshot)
}
