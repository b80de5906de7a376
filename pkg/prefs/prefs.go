// Package prefs manages per-user scheduling and inventory preferences.
// Stored settings are partial; every read merges them over documented
// defaults so stages always see a complete parameter set.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fieldops/fieldops/pkg/store"
)

// Preferences is the merged per-user configuration.
type Preferences struct {
	WorkStart         string `json:"work_start"` // HH:MM
	WorkEnd           string `json:"work_end"`
	BreakStart        string `json:"break_start"`
	BreakDurationMins int    `json:"break_duration_mins"`

	TravelBufferPct       int `json:"travel_buffer_pct"`
	JobBufferPct          int `json:"job_buffer_pct"`
	EmergencyResponseMins int `json:"emergency_response_mins"`
	MaxDailyJobs          int `json:"max_daily_jobs"`

	SupplierPriority      []string `json:"supplier_priority"`
	CriticalItemsMinStock float64  `json:"critical_items_min_stock"`
	RestockThresholdPct   int      `json:"restock_threshold_pct"`

	VIPClientIDs []string `json:"vip_client_ids"`

	VehicleCapacityKg  float64 `json:"vehicle_capacity_kg"`
	MaxRouteDistanceKm float64 `json:"max_route_distance_km"`
}

// Defaults returns the documented default preference set.
func Defaults() Preferences {
	return Preferences{
		WorkStart:             "08:00",
		WorkEnd:               "17:00",
		BreakStart:            "12:00",
		BreakDurationMins:     30,
		TravelBufferPct:       15,
		JobBufferPct:          10,
		EmergencyResponseMins: 60,
		MaxDailyJobs:          10,
		SupplierPriority:      []string{"Home Depot", "Lowe's", "Ace Hardware"},
		CriticalItemsMinStock: 2,
		RestockThresholdPct:   25,
		VIPClientIDs:          []string{},
		VehicleCapacityKg:     500,
		MaxRouteDistanceKm:    150,
	}
}

// Merge overlays stored partial settings on the defaults. Only fields
// present in raw override; a nil or empty payload yields the defaults.
func Merge(raw json.RawMessage) (Preferences, error) {
	merged := Defaults()
	if len(raw) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse stored preferences: %w", err)
	}
	return merged, nil
}

// Service reads and writes user preferences through the store.
type Service struct {
	store *store.Store
}

// NewService creates a preference service.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// Load returns the user's merged preferences. Missing users get defaults.
func (s *Service) Load(ctx context.Context, userID string) (Preferences, error) {
	raw, err := s.store.GetPreferencesRaw(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	return Merge(raw)
}

// LoadWithOverrides merges stored preferences with per-run overrides.
func (s *Service) LoadWithOverrides(ctx context.Context, userID string, overrides json.RawMessage) (Preferences, error) {
	p, err := s.Load(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	if len(overrides) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(overrides, &p); err != nil {
		return Preferences{}, fmt.Errorf("failed to parse preference overrides: %w", err)
	}
	return p, nil
}

// Save persists a full preference set for a user.
func (s *Service) Save(ctx context.Context, userID string, p Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	return s.store.SavePreferencesRaw(ctx, userID, data)
}

// PromptParams renders the preference set as prompt-ready lines for the
// dispatch agent.
func (p Preferences) PromptParams() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Work hours: %s-%s (break at %s for %d minutes)\n",
		p.WorkStart, p.WorkEnd, p.BreakStart, p.BreakDurationMins)
	fmt.Fprintf(&b, "Buffers: %d%% travel, %d%% per-job\n", p.TravelBufferPct, p.JobBufferPct)
	fmt.Fprintf(&b, "Emergency response target: %d minutes\n", p.EmergencyResponseMins)
	fmt.Fprintf(&b, "Max jobs per day: %d\n", p.MaxDailyJobs)
	fmt.Fprintf(&b, "Preferred suppliers: %s\n", strings.Join(p.SupplierPriority, ", "))
	if len(p.VIPClientIDs) > 0 {
		fmt.Fprintf(&b, "VIP clients: %s\n", strings.Join(p.VIPClientIDs, ", "))
	}

	return b.String()
}
