package store

import (
	"encoding/json"
	"time"
)

// PlanStatus enumerates the lifecycle stages of a daily plan.
type PlanStatus string

const (
	PlanStatusPending              PlanStatus = "pending"
	PlanStatusDispatch             PlanStatus = "dispatch"
	PlanStatusDispatchComplete     PlanStatus = "dispatch_complete"
	PlanStatusRoute                PlanStatus = "route"
	PlanStatusRouteComplete        PlanStatus = "route_complete"
	PlanStatusInventory            PlanStatus = "inventory"
	PlanStatusInventoryComplete    PlanStatus = "inventory_complete"
	PlanStatusHardwareStore        PlanStatus = "hardware_store_creation"
	PlanStatusAwaitingVerification PlanStatus = "awaiting_verification"
	PlanStatusApproved             PlanStatus = "approved"
	PlanStatusCancelled            PlanStatus = "cancelled"
	PlanStatusError                PlanStatus = "error"
)

// Terminal reports whether the status is a final state.
func (s PlanStatus) Terminal() bool {
	switch s {
	case PlanStatusApproved, PlanStatusCancelled, PlanStatusError:
		return true
	}
	return false
}

// ErrorKind classifies workflow failures.
type ErrorKind string

const (
	ErrKindAgentFailure ErrorKind = "agent_failure"
	ErrKindValidation   ErrorKind = "validation_error"
	ErrKindTimeout      ErrorKind = "timeout"
	ErrKindExternalAPI  ErrorKind = "external_api_error"
)

// ErrorState is the persisted failure surface of a plan.
type ErrorState struct {
	Kind           ErrorKind `json:"kind"`
	Message        string    `json:"message"`
	FailedStep     string    `json:"failed_step"`
	Timestamp      time.Time `json:"timestamp"`
	RetrySuggested bool      `json:"retry_suggested"`
}

// Plan is one daily-planning attempt for a (user, date) pair.
type Plan struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Date            string          `json:"date"` // YYYY-MM-DD
	Status          PlanStatus      `json:"status"`
	CurrentStep     string          `json:"current_step"`
	ApprovalStep    string          `json:"approval_step,omitempty"`
	DispatchOutput  json.RawMessage `json:"dispatch_output,omitempty"`
	RouteOutput     json.RawMessage `json:"route_output,omitempty"`
	InventoryOutput json.RawMessage `json:"inventory_output,omitempty"`
	JobIDs          []string        `json:"job_ids"`
	CreatedJobIDs   []string        `json:"created_job_ids"`
	ErrorState      *ErrorState     `json:"error_state,omitempty"`
	RetryCount      int             `json:"retry_count"`

	TotalDurationMins int     `json:"total_duration_mins"`
	TotalDistanceKm   float64 `json:"total_distance_km"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobType enumerates kinds of field work.
type JobType string

const (
	JobTypeEmergency  JobType = "emergency"
	JobTypeInspection JobType = "inspection"
	JobTypeService    JobType = "service"
	JobTypePickup     JobType = "pickup"
)

// JobPriority is the fixed priority label ordering used by the
// dispatch fallback: urgent < high < medium < low.
type JobPriority string

const (
	PriorityUrgent JobPriority = "urgent"
	PriorityHigh   JobPriority = "high"
	PriorityMedium JobPriority = "medium"
	PriorityLow    JobPriority = "low"
)

// PriorityRank returns the sort rank of a priority label. Unknown
// labels sort last.
func PriorityRank(p JobPriority) int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// RequiredItem is one part a job consumes.
type RequiredItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit,omitempty"`
}

// Job is a unit of field work.
type Job struct {
	ID                    string         `json:"id"`
	UserID                string         `json:"user_id"`
	Title                 string         `json:"title"`
	Type                  JobType        `json:"job_type"`
	Priority              JobPriority    `json:"priority"`
	Latitude              float64        `json:"latitude"`
	Longitude             float64        `json:"longitude"`
	Address               string         `json:"address"`
	EstimatedDurationMins int            `json:"estimated_duration_mins"`
	ScheduledDate         string         `json:"scheduled_date"`
	Status                string         `json:"status"`
	RequiredItems         []RequiredItem `json:"required_items,omitempty"`
	Instructions          string         `json:"instructions,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// InventoryItem is a stock record.
type InventoryItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
	Category  string    `json:"category"`
	Supplier  string    `json:"supplier"`
	MinStock  float64   `json:"min_stock"`
	UpdatedAt time.Time `json:"updated_at"`
}
