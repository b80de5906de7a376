package inventory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandInCatalogSingleStore(t *testing.T) {
	catalog := &StandInCatalog{}

	stores, err := catalog.FindStock(context.Background(), StockQuery{
		Items: []ShoppingItem{
			{Name: "pipe", QuantityNeeded: 3},
			{Name: "sealant", QuantityNeeded: 1},
		},
		PreferredSuppliers: []string{"Home Depot", "Lowe's"},
		NearLatitude:       52.52,
		NearLongitude:      13.405,
	})
	require.NoError(t, err)
	require.Len(t, stores, 1)

	s := stores[0]
	assert.Equal(t, "Home Depot", s.Name)
	assert.Equal(t, []string{"pipe", "sealant"}, s.ItemsAvailable)
	assert.InDelta(t, 50, s.EstimatedCost, 0.001)
	assert.InDelta(t, 52.52, s.Latitude, 0.001)
}

func TestStandInCatalogEmptyQuery(t *testing.T) {
	catalog := &StandInCatalog{}
	_, err := catalog.FindStock(context.Background(), StockQuery{})
	assert.Error(t, err)
}

func TestStandInCatalogCustomCost(t *testing.T) {
	catalog := &StandInCatalog{PerItemCost: 10}
	stores, err := catalog.FindStock(context.Background(), StockQuery{
		Items: []ShoppingItem{{Name: "fuse"}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 10, stores[0].EstimatedCost, 0.001)
}

func TestVisitMinsBounds(t *testing.T) {
	assert.Equal(t, 20, VisitMins(0))
	assert.Equal(t, 20, VisitMins(1))
	assert.Equal(t, 25, VisitMins(2))
	assert.Equal(t, 60, VisitMins(9))
	assert.Equal(t, 60, VisitMins(50))
}
