package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldops/fieldops/internal/observability"
	"github.com/fieldops/fieldops/pkg/dispatch"
	"github.com/fieldops/fieldops/pkg/prefs"
	"github.com/fieldops/fieldops/pkg/store"
)

// Stage computes the parts manifest and shopping list for a plan and
// prepares the hardware store run when parts are missing.
type Stage struct {
	catalog SupplierCatalog
	store   *store.Store
	logger  zerolog.Logger
}

// Config holds inventory stage dependencies.
type Config struct {
	Catalog SupplierCatalog
	Store   *store.Store
	Logger  zerolog.Logger
}

// NewStage creates an inventory stage.
func NewStage(cfg Config) *Stage {
	return &Stage{
		catalog: cfg.Catalog,
		store:   cfg.Store,
		logger:  cfg.Logger.With().Str("stage", "inventory").Logger(),
	}
}

// Run diffs each job's required parts against current stock, aggregates
// shortfalls into the shopping list, emits stock alerts, and asks the
// supplier catalog where to buy. Supplier failures degrade to a synthetic
// fallback store; they never abort the stage.
func (st *Stage) Run(ctx context.Context, planID, userID string, disp *dispatch.Result, p prefs.Preferences) (*Result, error) {
	start := time.Now()

	if disp == nil || len(disp.PrioritizedJobs) == 0 {
		return nil, st.fail(ctx, planID, store.ErrKindValidation,
			errors.New("dispatch output is missing"), start)
	}

	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusInventory, "inventory"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	ids := make([]string, len(disp.PrioritizedJobs))
	for i, pj := range disp.PrioritizedJobs {
		ids[i] = pj.JobID
	}

	jobs, items, err := st.fetchInputs(ctx, userID, ids)
	if err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindValidation, err, start)
	}

	result := Compute(jobs, items, p)

	if len(result.ShoppingList) > 0 {
		st.resolveSuppliers(ctx, jobs, result, p)
	}

	if err := st.store.SetStageOutput(ctx, planID, "inventory", result); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindAgentFailure, err, start)
	}
	if err := st.store.UpdatePlanStatus(ctx, planID, store.PlanStatusInventoryComplete, "inventory"); err != nil {
		return nil, st.fail(ctx, planID, store.ErrKindAgentFailure, err, start)
	}

	observability.ObserveStageRun("inventory", "ok", time.Since(start))
	st.logger.Info().
		Str("plan_id", planID).
		Int("shopping_items", len(result.ShoppingList)).
		Int("alerts", len(result.Alerts)).
		Msg("Inventory complete")

	return result, nil
}

// fetchInputs issues the job and inventory reads concurrently.
func (st *Stage) fetchInputs(ctx context.Context, userID string, ids []string) ([]*store.Job, []*store.InventoryItem, error) {
	var (
		wg      sync.WaitGroup
		jobs    []*store.Job
		items   []*store.InventoryItem
		jobsErr error
		invErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		jobs, jobsErr = st.store.GetJobsByIDs(ctx, userID, ids)
	}()
	go func() {
		defer wg.Done()
		items, invErr = st.store.ListInventory(ctx, userID)
	}()
	wg.Wait()

	if jobsErr != nil {
		return nil, nil, fmt.Errorf("failed to load jobs: %w", jobsErr)
	}
	if invErr != nil {
		return nil, nil, fmt.Errorf("failed to load inventory: %w", invErr)
	}
	return jobs, items, nil
}

// Compute builds the manifest, shopping list, and alerts. Pure so the
// shortfall and alert rules are directly testable.
func Compute(jobs []*store.Job, items []*store.InventoryItem, p prefs.Preferences) *Result {
	stock := make(map[string]*store.InventoryItem, len(items))
	for _, item := range items {
		stock[strings.ToLower(item.Name)] = item
	}

	result := &Result{
		Manifest:     []ManifestEntry{},
		ShoppingList: []ShoppingItem{},
		Alerts:       []Alert{},
	}

	// Aggregate shortfalls by item name, preserving first-seen order.
	shortfalls := map[string]int{}

	for _, job := range jobs {
		for _, req := range job.RequiredItems {
			key := strings.ToLower(req.Name)

			var available float64
			var category, supplier string
			if item, ok := stock[key]; ok {
				available = item.Quantity
				category = item.Category
				supplier = item.Supplier
			}

			result.Manifest = append(result.Manifest, ManifestEntry{
				JobID:             job.ID,
				ItemName:          req.Name,
				Unit:              req.Unit,
				QuantityNeeded:    req.Quantity,
				QuantityAvailable: available,
			})

			// Shortfall rule: an item enters the list only when
			// needed exceeds available; repeats accumulate.
			if req.Quantity > available {
				missing := req.Quantity - available
				if idx, ok := shortfalls[key]; ok {
					result.ShoppingList[idx].QuantityNeeded += missing
				} else {
					shortfalls[key] = len(result.ShoppingList)
					result.ShoppingList = append(result.ShoppingList, ShoppingItem{
						Name:              req.Name,
						QuantityNeeded:    missing,
						Unit:              req.Unit,
						Category:          category,
						PreferredSupplier: supplier,
					})
				}
			}
		}
	}

	for _, item := range items {
		switch {
		case item.Quantity == 0:
			result.Alerts = append(result.Alerts, Alert{
				Kind:     AlertOutOfStock,
				ItemName: item.Name,
				Quantity: item.Quantity,
			})
		case item.Quantity <= p.CriticalItemsMinStock:
			result.Alerts = append(result.Alerts, Alert{
				Kind:      AlertLowStock,
				ItemName:  item.Name,
				Quantity:  item.Quantity,
				Threshold: p.CriticalItemsMinStock,
			})
		}
	}

	return result
}

// resolveSuppliers queries the catalog and attaches the store run. Any
// catalog failure or empty answer falls back to one synthetic store.
func (st *Stage) resolveSuppliers(ctx context.Context, jobs []*store.Job, result *Result, p prefs.Preferences) {
	var nearLat, nearLon float64
	if len(jobs) > 0 {
		nearLat, nearLon = jobs[0].Latitude, jobs[0].Longitude
	}

	stores, err := st.catalog.FindStock(ctx, StockQuery{
		Items:              result.ShoppingList,
		PreferredSuppliers: p.SupplierPriority,
		NearLatitude:       nearLat,
		NearLongitude:      nearLon,
	})
	if err != nil || len(stores) == 0 {
		if err != nil {
			st.logger.Warn().Err(err).Msg("Supplier lookup failed, using fallback store")
		}
		stores = []StoreLocation{fallbackStore(result.ShoppingList, nearLat, nearLon)}
		result.SupplierNote = "supplier lookup unavailable, synthetic store substituted"
	}

	var total float64
	for _, s := range stores {
		total += s.EstimatedCost
	}

	result.StoreRun = &StoreRun{
		Stores:    stores,
		TotalCost: total,
	}
}

// CreateStoreJobs creates one pickup job per store of the run and records
// the new ids on the plan. Re-running after a retry creates the jobs
// again; ids accumulate on the plan rather than being deduplicated.
func (st *Stage) CreateStoreJobs(ctx context.Context, planID, userID, date string, result *Result) ([]string, error) {
	if result.StoreRun == nil || len(result.StoreRun.Stores) == 0 {
		return nil, nil
	}

	var created []string
	for _, loc := range result.StoreRun.Stores {
		job := &store.Job{
			UserID:                userID,
			Title:                 fmt.Sprintf("Hardware store run: %s", loc.Name),
			Type:                  store.JobTypePickup,
			Priority:              store.PriorityHigh,
			Latitude:              loc.Latitude,
			Longitude:             loc.Longitude,
			Address:               loc.Address,
			EstimatedDurationMins: loc.EstimatedVisitMins,
			ScheduledDate:         date,
			Instructions:          "Pick up: " + strings.Join(loc.ItemsAvailable, ", "),
		}
		if err := st.store.CreateJob(ctx, job); err != nil {
			return created, fmt.Errorf("failed to create store run job: %w", err)
		}
		created = append(created, job.ID)
		observability.StoreJobCreated()
	}

	if err := st.store.AppendCreatedJobIDs(ctx, planID, created); err != nil {
		return created, err
	}

	result.StoreRun.CreatedJobIDs = append(result.StoreRun.CreatedJobIDs, created...)
	return created, nil
}

func fallbackStore(items []ShoppingItem, lat, lon float64) StoreLocation {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return StoreLocation{
		Name:               "Local Hardware Store",
		Address:            "Nearest hardware store",
		Latitude:           lat,
		Longitude:          lon,
		ItemsAvailable:     names,
		EstimatedVisitMins: VisitMins(len(names)),
		EstimatedCost:      25 * float64(len(names)),
	}
}

func (st *Stage) fail(ctx context.Context, planID string, kind store.ErrorKind, err error, start time.Time) error {
	observability.ObserveStageRun("inventory", "error", time.Since(start))
	observability.ObserveStageError("inventory", string(kind))

	es := store.ErrorState{
		Kind:           kind,
		Message:        err.Error(),
		FailedStep:     "inventory",
		RetrySuggested: true,
	}
	if serr := st.store.SetPlanError(ctx, planID, es); serr != nil {
		st.logger.Error().Err(serr).Str("plan_id", planID).Msg("Failed to record inventory error")
	}

	return fmt.Errorf("inventory stage: %w", err)
}
