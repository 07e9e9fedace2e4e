package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRating is the neutral rating assigned when a product is created
// without an explicit one.
const DefaultRating = 2.5

// Product represents a catalog item. Quantity is the persisted stock count,
// independent of any in-progress cart selection. LastModified is stamped on
// every mutation and is used for display and ordering only, never for
// conflict resolution.
type Product struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Quantity     int       `json:"quantity" db:"quantity"`
	Price        float64   `json:"price" db:"price"`
	ImageURL     string    `json:"image_url" db:"image_url"`
	Rating       float64   `json:"rating" db:"rating"`
	IsFeatured   bool      `json:"is_featured" db:"is_featured"`
	LastModified time.Time `json:"last_modified" db:"last_modified"`
}

// StockValue is the product's contribution to total inventory value.
func (p *Product) StockValue() float64 {
	return p.Price * float64(p.Quantity)
}

// ChangeKind classifies a remote mirror change event.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// ChangeEvent is a single remote mirror change. Removed events carry the
// product ID only.
type ChangeEvent struct {
	Kind    ChangeKind `json:"kind"`
	Product Product    `json:"product"`
}
