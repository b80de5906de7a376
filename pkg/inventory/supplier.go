package inventory

import (
	"context"
	"fmt"
)

// StockQuery asks suppliers which stores stock the wanted items.
type StockQuery struct {
	Items              []ShoppingItem `json:"items"`
	PreferredSuppliers []string       `json:"preferred_suppliers"`
	NearLatitude       float64        `json:"near_latitude"`
	NearLongitude      float64        `json:"near_longitude"`
}

// SupplierCatalog answers stock and pricing queries.
//
// Preconditions: the query carries at least one item. Postconditions:
// every returned store lists which of the queried items it stocks and a
// non-negative cost estimate. An empty slice means no supplier match;
// callers degrade to a synthetic fallback store rather than failing.
type SupplierCatalog interface {
	FindStock(ctx context.Context, query StockQuery) ([]StoreLocation, error)
}

// StandInCatalog is a stand-in for a real supplier API: it answers every
// query with a single store of the first preferred supplier carrying all
// queried items at a flat per-item estimate.
type StandInCatalog struct {
	// PerItemCost is the flat cost estimate per list item. Zero means 25.
	PerItemCost float64
}

// FindStock fabricates a single fully-stocked store.
func (c *StandInCatalog) FindStock(_ context.Context, query StockQuery) ([]StoreLocation, error) {
	if len(query.Items) == 0 {
		return nil, fmt.Errorf("stock query has no items")
	}

	cost := c.PerItemCost
	if cost <= 0 {
		cost = 25
	}

	supplier := "Hardware Store"
	if len(query.PreferredSuppliers) > 0 {
		supplier = query.PreferredSuppliers[0]
	}

	names := make([]string, len(query.Items))
	for i, item := range query.Items {
		names[i] = item.Name
	}

	return []StoreLocation{{
		Name:               supplier,
		Address:            fmt.Sprintf("%s, nearest branch", supplier),
		Latitude:           query.NearLatitude,
		Longitude:          query.NearLongitude,
		ItemsAvailable:     names,
		EstimatedVisitMins: VisitMins(len(names)),
		EstimatedCost:      cost * float64(len(names)),
	}}, nil
}

// VisitMins estimates the in-store time for an item count, bounded to
// [20,60] minutes.
func VisitMins(itemCount int) int {
	mins := 15 + 5*itemCount
	if mins < 20 {
		return 20
	}
	if mins > 60 {
		return 60
	}
	return mins
}
