package inventory

// ManifestEntry records one part requirement of one job against stock.
type ManifestEntry struct {
	JobID             string  `json:"job_id"`
	ItemName          string  `json:"item_name"`
	Unit              string  `json:"unit,omitempty"`
	QuantityNeeded    float64 `json:"quantity_needed"`
	QuantityAvailable float64 `json:"quantity_available"`
}

// ShoppingItem is one aggregated shortfall entry.
type ShoppingItem struct {
	Name              string  `json:"name"`
	QuantityNeeded    float64 `json:"quantity_needed"`
	Unit              string  `json:"unit,omitempty"`
	Category          string  `json:"category,omitempty"`
	PreferredSupplier string  `json:"preferred_supplier,omitempty"`
}

// AlertKind classifies stock alerts.
type AlertKind string

const (
	AlertOutOfStock AlertKind = "out_of_stock"
	AlertLowStock   AlertKind = "low_stock"
)

// Alert flags an inventory item at or below a stock threshold.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	ItemName  string    `json:"item_name"`
	Quantity  float64   `json:"quantity"`
	Threshold float64   `json:"threshold"`
}

// StoreLocation is one supplier store of a hardware store run.
type StoreLocation struct {
	Name              string   `json:"name"`
	Address           string   `json:"address"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	ItemsAvailable    []string `json:"items_available"`
	EstimatedVisitMins int     `json:"estimated_visit_mins"`
	EstimatedCost     float64  `json:"estimated_cost"`
}

// StoreRun describes the hardware store trip derived from the shopping
// list, including the ids of the pickup jobs created for it.
type StoreRun struct {
	Stores        []StoreLocation `json:"stores"`
	TotalCost     float64         `json:"total_cost"`
	CreatedJobIDs []string        `json:"created_job_ids"`
}

// Result is the inventory stage output embedded in the plan record.
type Result struct {
	Manifest     []ManifestEntry `json:"manifest"`
	ShoppingList []ShoppingItem  `json:"shopping_list"`
	Alerts       []Alert         `json:"alerts"`
	StoreRun     *StoreRun       `json:"store_run,omitempty"`
	SupplierNote string          `json:"supplier_note,omitempty"`
}
