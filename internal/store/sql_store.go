package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sqlStore is the relational Store implementation, backed by PostgreSQL via
// database/sql. Schema is managed by goose migrations (see migrations/).
type sqlStore struct {
	db       *sql.DB
	logger   *zap.Logger
	notifier *notifier

	// writeMu serializes mutation+snapshot+broadcast so observers never see
	// snapshots out of order.
	writeMu sync.Mutex
}

// NewSQLStore creates a Store on top of an open database handle.
func NewSQLStore(db *sql.DB, logger *zap.Logger) Store {
	return &sqlStore{
		db:       db,
		logger:   logger,
		notifier: newNotifier(),
	}
}

// Upsert inserts or fully replaces the record sharing the product's ID.
func (s *sqlStore) Upsert(ctx context.Context, product *domain.Product) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO products (id, name, quantity, price, image_url, rating, is_featured, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			price = EXCLUDED.price,
			image_url = EXCLUDED.image_url,
			rating = EXCLUDED.rating,
			is_featured = EXCLUDED.is_featured,
			last_modified = EXCLUDED.last_modified
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Quantity,
		product.Price,
		product.ImageURL,
		product.Rating,
		product.IsFeatured,
		product.LastModified,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}

	s.changed(ctx)
	return nil
}

// Delete removes the record with the given ID; absent ID is a no-op.
func (s *sqlStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil
	}

	s.changed(ctx)
	return nil
}

// GetByID retrieves a product by ID.
func (s *sqlStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, quantity, price, image_url, rating, is_featured, last_modified
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Quantity,
		&product.Price,
		&product.ImageURL,
		&product.Rating,
		&product.IsFeatured,
		&product.LastModified,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// List returns the full current product set.
func (s *sqlStore) List(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, quantity, price, image_url, rating, is_featured, last_modified
		FROM products
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product := &domain.Product{}
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Quantity,
			&product.Price,
			&product.ImageURL,
			&product.Rating,
			&product.IsFeatured,
			&product.LastModified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// ObserveAll subscribes to full-set snapshots.
func (s *sqlStore) ObserveAll(ctx context.Context) *Subscription {
	current, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to load initial snapshot for observer", zap.Error(err))
		current = []*domain.Product{}
	}
	return s.notifier.subscribe(ctx, current)
}

func (s *sqlStore) Close() error {
	s.notifier.closeAll()
	return s.db.Close()
}

// changed re-queries the set and broadcasts it. Called with writeMu held.
func (s *sqlStore) changed(ctx context.Context) {
	snapshot, err := s.List(ctx)
	if err != nil {
		s.logger.Error("Failed to snapshot products after change", zap.Error(err))
		return
	}
	s.notifier.broadcast(snapshot)
}
