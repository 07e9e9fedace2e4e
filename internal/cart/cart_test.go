package cart

import (
	"context"
	"errors"
	"testing"

	"shopsync/internal/domain"
	"shopsync/internal/store"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// fakeCatalog is an in-memory Catalog with injectable update failures.
type fakeCatalog struct {
	products   map[uuid.UUID]*domain.Product
	updateErr  error
	updates    []domain.Product
	updateSeen map[uuid.UUID]int
}

func newFakeCatalog(products ...*domain.Product) *fakeCatalog {
	c := &fakeCatalog{
		products:   make(map[uuid.UUID]*domain.Product),
		updateSeen: make(map[uuid.UUID]int),
	}
	for _, p := range products {
		clone := *p
		c.products[p.ID] = &clone
	}
	return c
}

func (c *fakeCatalog) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	clone := *p
	return &clone, nil
}

func (c *fakeCatalog) Update(ctx context.Context, product *domain.Product) error {
	if c.updateErr != nil {
		return c.updateErr
	}
	clone := *product
	c.products[product.ID] = &clone
	c.updates = append(c.updates, clone)
	c.updateSeen[product.ID]++
	return nil
}

func testProduct(name string, price float64, quantity int) *domain.Product {
	return &domain.Product{
		ID:       uuid.New(),
		Name:     name,
		Price:    price,
		Quantity: quantity,
		Rating:   domain.DefaultRating,
	}
}

func TestAddCreatesLineWithSnapshot(t *testing.T) {
	milk := testProduct("Milk", 1.49, 10)
	c := New(newFakeCatalog(milk), zap.NewNop())

	c.Add(milk)

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	line := lines[0]
	if line.ProductID != milk.ID || line.Name != "Milk" || line.UnitPrice != 1.49 || line.DesiredQuantity != 1 {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestAddSameProductIncrementsQuantity(t *testing.T) {
	milk := testProduct("Milk", 1.49, 10)
	c := New(newFakeCatalog(milk), zap.NewNop())

	c.Add(milk)
	c.Add(milk)
	c.Add(milk)

	lines := c.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected a single line, got %d", len(lines))
	}
	if lines[0].DesiredQuantity != 3 {
		t.Fatalf("expected quantity 3, got %d", lines[0].DesiredQuantity)
	}
}

func TestTotalUsesAddTimePrices(t *testing.T) {
	milk := testProduct("Milk", 2.00, 10)
	catalog := newFakeCatalog(milk)
	c := New(catalog, zap.NewNop())

	c.Add(milk)
	c.Add(milk)

	// A later price edit must not move the cart total.
	milk.Price = 99.99

	if got := c.Total(); got != 4.00 {
		t.Fatalf("expected total 4.00 at snapshot price, got %.2f", got)
	}
}

func TestChangeQuantity(t *testing.T) {
	milk := testProduct("Milk", 1.00, 10)
	bread := testProduct("Bread", 2.00, 5)

	tests := []struct {
		name     string
		deltas   []int
		wantQty  int
		wantGone bool
	}{
		{name: "positive delta accumulates", deltas: []int{2, 3}, wantQty: 6},
		{name: "negative delta decrements", deltas: []int{4, -2}, wantQty: 3},
		{name: "delta to zero removes line", deltas: []int{-1}, wantGone: true},
		{name: "delta below zero removes line", deltas: []int{2, -10}, wantGone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(newFakeCatalog(milk, bread), zap.NewNop())
			c.Add(milk)
			c.Add(bread)

			for _, d := range tt.deltas {
				c.ChangeQuantity(milk.ID, d)
			}

			var found *domain.CartLine
			for _, line := range c.Lines() {
				if line.ProductID == milk.ID {
					l := line
					found = &l
				}
			}

			if tt.wantGone {
				if found != nil {
					t.Fatalf("expected line removed, still present with qty %d", found.DesiredQuantity)
				}
				return
			}
			if found == nil {
				t.Fatal("expected line present, was removed")
			}
			if found.DesiredQuantity != tt.wantQty {
				t.Fatalf("expected quantity %d, got %d", tt.wantQty, found.DesiredQuantity)
			}
		})
	}
}

func TestChangeQuantityAbsentLineIsNoop(t *testing.T) {
	c := New(newFakeCatalog(), zap.NewNop())
	c.ChangeQuantity(uuid.New(), 5)
	if len(c.Lines()) != 0 {
		t.Fatal("expected cart to stay empty")
	}
}

func TestRemoveDropsOnlyMatchingLine(t *testing.T) {
	milk := testProduct("Milk", 1.00, 10)
	bread := testProduct("Bread", 2.00, 5)
	c := New(newFakeCatalog(milk, bread), zap.NewNop())

	c.Add(milk)
	c.Add(bread)
	c.Remove(milk.ID)

	lines := c.Lines()
	if len(lines) != 1 || lines[0].ProductID != bread.ID {
		t.Fatalf("expected only bread left, got %+v", lines)
	}
}

func TestConfirmOrderDecrementsStock(t *testing.T) {
	milk := testProduct("Milk", 1.50, 10)
	catalog := newFakeCatalog(milk)
	c := New(catalog, zap.NewNop())

	c.Add(milk)
	c.ChangeQuantity(milk.ID, 3) // desired 4

	receipt := c.ConfirmOrder(context.Background(), "card", "12 Main St")

	if got := catalog.products[milk.ID].Quantity; got != 6 {
		t.Fatalf("expected stock 6 after confirmation, got %d", got)
	}
	if receipt.Total != 6.00 {
		t.Fatalf("expected receipt total 6.00, got %.2f", receipt.Total)
	}
	if receipt.PaymentMethod != "card" || receipt.Address != "12 Main St" {
		t.Fatalf("receipt did not echo payment details: %+v", receipt)
	}
	if len(c.Lines()) != 0 {
		t.Fatal("expected cart cleared after confirmation")
	}
}

func TestConfirmOrderClampsStockAtZero(t *testing.T) {
	milk := testProduct("Milk", 1.50, 2)
	catalog := newFakeCatalog(milk)
	c := New(catalog, zap.NewNop())

	c.Add(milk)
	c.ChangeQuantity(milk.ID, 4) // desired 5, stock only 2

	c.ConfirmOrder(context.Background(), "cash", "addr")

	if got := catalog.products[milk.ID].Quantity; got != 0 {
		t.Fatalf("expected stock clamped at 0, got %d", got)
	}
}

func TestConfirmOrderSkipsDeletedProducts(t *testing.T) {
	milk := testProduct("Milk", 1.50, 10)
	bread := testProduct("Bread", 2.00, 5)
	catalog := newFakeCatalog(bread)
	c := New(catalog, zap.NewNop())

	// Milk sits in the cart but is gone from the catalog.
	c.Add(milk)
	c.Add(bread)

	receipt := c.ConfirmOrder(context.Background(), "card", "addr")

	if catalog.updateSeen[milk.ID] != 0 {
		t.Fatal("expected no stock update for deleted product")
	}
	if got := catalog.products[bread.ID].Quantity; got != 4 {
		t.Fatalf("expected bread stock 4, got %d", got)
	}
	// The receipt still carries both snapshotted lines.
	if len(receipt.Lines) != 2 {
		t.Fatalf("expected 2 receipt lines, got %d", len(receipt.Lines))
	}
}

func TestConfirmOrderClearsCartEvenWhenUpdatesFail(t *testing.T) {
	milk := testProduct("Milk", 1.50, 10)
	catalog := newFakeCatalog(milk)
	catalog.updateErr = errors.New("store unavailable")
	c := New(catalog, zap.NewNop())

	c.Add(milk)
	c.ConfirmOrder(context.Background(), "card", "addr")

	if len(c.Lines()) != 0 {
		t.Fatal("expected cart cleared despite stock update failure")
	}
}

func TestManagerReturnsSameCartPerUser(t *testing.T) {
	m := NewManager(newFakeCatalog(), zap.NewNop())
	userA := uuid.New()
	userB := uuid.New()

	if m.Get(userA) != m.Get(userA) {
		t.Fatal("expected stable cart for the same user")
	}
	if m.Get(userA) == m.Get(userB) {
		t.Fatal("expected distinct carts for distinct users")
	}

	m.Get(userA).Add(testProduct("Milk", 1.00, 1))
	m.Drop(userA)
	if len(m.Get(userA).Lines()) != 0 {
		t.Fatal("expected a fresh cart after Drop")
	}
}

// Property: the cart total always equals the sum of unit price times desired
// quantity over its lines, under any interleaving of adds and deltas.
func TestProperty_TotalMatchesLines(t *testing.T) {
	properties := gopter.NewProperties(nil)

	products := []*domain.Product{
		testProduct("Milk", 1.49, 10),
		testProduct("Bread", 2.35, 8),
		testProduct("Eggs", 4.10, 12),
	}

	properties.Property("total is the sum of line subtotals", prop.ForAll(
		func(ops []int) bool {
			c := New(newFakeCatalog(products...), zap.NewNop())

			for _, op := range ops {
				p := products[abs(op)%len(products)]
				if op%2 == 0 {
					c.Add(p)
				} else {
					c.ChangeQuantity(p.ID, op%7)
				}
			}

			var want float64
			for _, line := range c.Lines() {
				if line.DesiredQuantity <= 0 {
					t.Logf("FAIL: line with non-positive quantity: %+v", line)
					return false
				}
				want += line.UnitPrice * float64(line.DesiredQuantity)
			}
			return c.Total() == want
		},
		gen.SliceOf(gen.IntRange(-50, 50)),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
