package stats

import (
	"context"
	"sort"

	"shopsync/internal/domain"
)

// Lister is the read-only slice of the catalog the statistics view needs.
type Lister interface {
	List(ctx context.Context) ([]*domain.Product, error)
}

// TopN is how many products the ranked views return.
const TopN = 5

// Summary aggregates the current stock. TotalStockValue is the sum of
// price times quantity over all products; AveragePrice is the stock value
// per stored item, zero when the stock is empty.
type Summary struct {
	TotalProducts   int              `json:"total_products"`
	TotalItems      int              `json:"total_items"`
	TotalStockValue float64          `json:"total_stock_value"`
	AveragePrice    float64          `json:"average_price"`
	TopByQuantity   []domain.Product `json:"top_by_quantity"`
	TopByStockValue []domain.Product `json:"top_by_stock_value"`
}

// Service computes stock statistics from the local store.
type Service struct {
	catalog Lister
}

// NewService creates a statistics service over the given catalog.
func NewService(catalog Lister) *Service {
	return &Service{catalog: catalog}
}

// Summarize aggregates the full current product set.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	products, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{TotalProducts: len(products)}
	for _, p := range products {
		summary.TotalItems += p.Quantity
		summary.TotalStockValue += p.StockValue()
	}
	if summary.TotalItems > 0 {
		summary.AveragePrice = summary.TotalStockValue / float64(summary.TotalItems)
	}

	summary.TopByQuantity = rank(products, func(a, b *domain.Product) bool {
		return a.Quantity > b.Quantity
	})
	summary.TopByStockValue = rank(products, func(a, b *domain.Product) bool {
		return a.StockValue() > b.StockValue()
	})

	return summary, nil
}

func rank(products []*domain.Product, less func(a, b *domain.Product) bool) []domain.Product {
	ranked := make([]*domain.Product, len(products))
	copy(ranked, products)
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })

	n := TopN
	if len(ranked) < n {
		n = len(ranked)
	}

	top := make([]domain.Product, 0, n)
	for _, p := range ranked[:n] {
		top = append(top, *p)
	}
	return top
}
