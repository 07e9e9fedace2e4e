package cart

import (
	"context"
	"sync"
	"time"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog is the slice of the sync engine the cart needs at confirm time:
// read current stock and write the decremented stock back through the
// write-through path.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) error
}

// Receipt summarizes a confirmed order. Payment is simulated: the method
// and address are echoed back, never charged or validated.
type Receipt struct {
	Lines         []domain.CartLine `json:"lines"`
	Total         float64           `json:"total"`
	PaymentMethod string            `json:"payment_method"`
	Address       string            `json:"address"`
	ConfirmedAt   time.Time         `json:"confirmed_at"`
}

// Cart is one session's in-memory selection list. Lines keep the name and
// unit price snapshotted at add time, so the total is immune to later
// catalog price edits. Desired quantities are tracked independently of
// persisted stock and only reconciled against it at confirmation.
type Cart struct {
	catalog Catalog
	logger  *zap.Logger

	mu    sync.Mutex
	lines []domain.CartLine
}

// New creates an empty cart over the given catalog.
func New(catalog Catalog, logger *zap.Logger) *Cart {
	return &Cart{catalog: catalog, logger: logger}
}

// Add increments the product's line by one, appending a new line with
// quantity 1 (and the product's current name and price as its snapshot)
// when none exists. Available stock is deliberately not checked here.
func (c *Cart) Add(product *domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID == product.ID {
			c.lines[i].DesiredQuantity++
			return
		}
	}

	c.lines = append(c.lines, domain.CartLine{
		ProductID:       product.ID,
		Name:            product.Name,
		UnitPrice:       product.Price,
		DesiredQuantity: 1,
	})
}

// ChangeQuantity adjusts the line's desired quantity by delta, which may be
// any integer. A result at or below zero removes the line entirely; an
// absent line is a no-op.
func (c *Cart) ChangeQuantity(productID uuid.UUID, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}

		newQty := c.lines[i].DesiredQuantity + delta
		if newQty <= 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
		} else {
			c.lines[i].DesiredQuantity = newQty
		}
		return
	}
}

// Remove drops every line matching the product (at most one in practice).
func (c *Cart) Remove(productID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	c.lines = kept
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Total sums the lines at their add-time snapshot prices.
func (c *Cart) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, line := range c.lines {
		total += line.Subtotal()
	}
	return total
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// ConfirmOrder decrements persisted stock for each line, clamped at zero,
// and clears the cart. Reconciliation is best-effort by design: a product
// deleted since it was added is skipped, a failing stock update is logged
// and the remaining lines still processed, and the cart is cleared
// unconditionally at the end.
func (c *Cart) ConfirmOrder(ctx context.Context, paymentMethod, address string) *Receipt {
	c.mu.Lock()
	snapshot := make([]domain.CartLine, len(c.lines))
	copy(snapshot, c.lines)
	c.mu.Unlock()

	for _, line := range snapshot {
		product, err := c.catalog.GetByID(ctx, line.ProductID)
		if err != nil {
			c.logger.Info("Skipping cart line without catalog entry",
				zap.String("product_id", line.ProductID.String()),
				zap.Error(err),
			)
			continue
		}

		newStock := product.Quantity - line.DesiredQuantity
		if newStock < 0 {
			newStock = 0
		}
		product.Quantity = newStock

		if err := c.catalog.Update(ctx, product); err != nil {
			c.logger.Error("Failed to decrement stock for cart line",
				zap.String("product_id", line.ProductID.String()),
				zap.Error(err),
			)
		}
	}

	receipt := &Receipt{
		Lines:         snapshot,
		PaymentMethod: paymentMethod,
		Address:       address,
		ConfirmedAt:   time.Now().UTC(),
	}
	for _, line := range snapshot {
		receipt.Total += line.Subtotal()
	}

	c.Clear()
	return receipt
}
