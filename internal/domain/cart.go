package domain

import "github.com/google/uuid"

// CartLine is one in-progress selection in a session's cart. It holds a weak
// reference to a product: the catalog record may be edited, restocked or
// deleted independently. Name and UnitPrice are snapshots captured when the
// line was created, so later catalog price changes do not affect the cart
// total. DesiredQuantity is always positive; a line driven to zero or below
// is removed rather than kept at zero.
type CartLine struct {
	ProductID       uuid.UUID `json:"product_id"`
	Name            string    `json:"name"`
	UnitPrice       float64   `json:"unit_price"`
	DesiredQuantity int       `json:"desired_quantity"`
}

// Subtotal is the line's contribution to the cart total, priced at the
// add-time snapshot.
func (l CartLine) Subtotal() float64 {
	return l.UnitPrice * float64(l.DesiredQuantity)
}
