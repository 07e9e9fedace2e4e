package cart

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager keys carts by user so each session gets its own in-memory cart.
// Carts are not persisted: a restart or logout discards them.
type Manager struct {
	catalog Catalog
	logger  *zap.Logger

	mu    sync.Mutex
	carts map[uuid.UUID]*Cart
}

// NewManager creates an empty cart manager over the given catalog.
func NewManager(catalog Catalog, logger *zap.Logger) *Manager {
	return &Manager{
		catalog: catalog,
		logger:  logger,
		carts:   make(map[uuid.UUID]*Cart),
	}
}

// Get returns the user's cart, creating it on first use.
func (m *Manager) Get(userID uuid.UUID) *Cart {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[userID]
	if !ok {
		c = New(m.catalog, m.logger)
		m.carts[userID] = c
	}
	return c
}

// Drop discards the user's cart, called at session end.
func (m *Manager) Drop(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, userID)
}
