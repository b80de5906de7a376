package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreatePlan inserts a new pending plan for a (user, date) attempt.
// Having more than one active plan per user per date is discouraged but
// not enforced; an existing active plan only produces a warning.
func (s *Store) CreatePlan(ctx context.Context, userID, date string, jobIDs []string) (*Plan, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if date == "" {
		return nil, fmt.Errorf("date is required")
	}

	active, err := s.HasActivePlan(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if active {
		s.logger.Warn().
			Str("user_id", userID).
			Str("date", date).
			Msg("Creating plan while another plan is still active for this date")
	}

	now := time.Now().UTC()
	plan := &Plan{
		ID:            uuid.New().String(),
		UserID:        userID,
		Date:          date,
		Status:        PlanStatusPending,
		JobIDs:        append([]string(nil), jobIDs...),
		CreatedJobIDs: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	jobIDsJSON, err := json.Marshal(plan.JobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, user_id, date, status, job_ids, created_job_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '[]', ?, ?)`,
		plan.ID, plan.UserID, plan.Date, plan.Status, string(jobIDsJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}

	s.notifyPlan(ctx, plan.ID, "created")
	return plan, nil
}

// GetPlan retrieves a plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, date, status, current_step, approval_step,
		       dispatch_output, route_output, inventory_output,
		       job_ids, created_job_ids, error_state, retry_count,
		       total_duration_mins, total_distance_km,
		       created_at, updated_at, started_at, completed_at
		FROM plans WHERE id = ?`, id)

	return scanPlan(row)
}

// HasActivePlan reports whether a non-terminal plan exists for the pair.
func (s *Store) HasActivePlan(ctx context.Context, userID, date string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM plans
		WHERE user_id = ? AND date = ? AND status NOT IN (?, ?, ?)`,
		userID, date, PlanStatusApproved, PlanStatusCancelled, PlanStatusError,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active plans: %w", err)
	}
	return count > 0, nil
}

// UpdatePlanStatus updates the status and current step of a plan.
func (s *Store) UpdatePlanStatus(ctx context.Context, id string, status PlanStatus, currentStep string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, current_step = ?, updated_at = ? WHERE id = ?`,
		status, currentStep, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "status")
	return nil
}

// MarkPlanStarted records the workflow start time.
func (s *Store) MarkPlanStarted(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET started_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark plan started: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "started")
	return nil
}

// SetStageOutput persists one stage's result payload on the plan. A new
// run overwrites the previous payload.
func (s *Store) SetStageOutput(ctx context.Context, id, stage string, output any) error {
	var column string
	switch stage {
	case "dispatch":
		column = "dispatch_output"
	case "route":
		column = "route_output"
	case "inventory":
		column = "inventory_output"
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal %s output: %w", stage, err)
	}

	query := fmt.Sprintf("UPDATE plans SET %s = ?, updated_at = ? WHERE id = ?", column)
	res, err := s.db.ExecContext(ctx, query, string(data), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set %s output: %w", stage, err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, stage+"_output")
	return nil
}

// SetPlanError records the error state and moves the plan to error status.
func (s *Store) SetPlanError(ctx context.Context, id string, es ErrorState) error {
	if es.Timestamp.IsZero() {
		es.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(es)
	if err != nil {
		return fmt.Errorf("failed to marshal error state: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, error_state = ?, updated_at = ? WHERE id = ?`,
		PlanStatusError, string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set plan error: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "error")
	return nil
}

// RestartPlan clears the error state, bumps the retry counter, and resets
// the plan to pending so the pipeline can restart from the first stage.
func (s *Store) RestartPlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, current_step = '', error_state = NULL,
		       retry_count = retry_count + 1, updated_at = ?
		WHERE id = ?`,
		PlanStatusPending, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to restart plan: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "restarted")
	return nil
}

// AppendCreatedJobIDs records ids of jobs the workflow created during a run.
func (s *Store) AppendCreatedJobIDs(ctx context.Context, id string, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return err
	}

	combined := append(plan.CreatedJobIDs, jobIDs...)
	data, err := json.Marshal(combined)
	if err != nil {
		return fmt.Errorf("failed to marshal created job ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE plans SET created_job_ids = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to append created job ids: %w", err)
	}

	s.notifyPlan(ctx, id, "created_jobs")
	return nil
}

// SetAwaitingVerification parks the plan at the human verification gate.
func (s *Store) SetAwaitingVerification(ctx context.Context, id, approvalStep string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, approval_step = ?, updated_at = ? WHERE id = ?`,
		PlanStatusAwaitingVerification, approvalStep, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set awaiting verification: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "awaiting_verification")
	return nil
}

// CompletePlan marks the plan approved with aggregate metrics.
func (s *Store) CompletePlan(ctx context.Context, id string, durationMins int, distanceKm float64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, current_step = 'complete', approval_step = '',
		       total_duration_mins = ?, total_distance_km = ?,
		       completed_at = ?, updated_at = ?
		WHERE id = ?`,
		PlanStatusApproved, durationMins, distanceKm, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete plan: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "completed")
	return nil
}

// CancelPlan marks the plan cancelled.
func (s *Store) CancelPlan(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE plans SET status = ?, approval_step = '', completed_at = ?, updated_at = ?
		WHERE id = ?`,
		PlanStatusCancelled, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel plan: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	s.notifyPlan(ctx, id, "cancelled")
	return nil
}

// ListStalePlans returns non-terminal plans not updated since the cutoff.
func (s *Store) ListStalePlans(ctx context.Context, cutoff time.Time) ([]*Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, status, current_step, approval_step,
		       dispatch_output, route_output, inventory_output,
		       job_ids, created_job_ids, error_state, retry_count,
		       total_duration_mins, total_distance_km,
		       created_at, updated_at, started_at, completed_at
		FROM plans
		WHERE status NOT IN (?, ?, ?) AND updated_at < ?`,
		PlanStatusApproved, PlanStatusCancelled, PlanStatusError, cutoff.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// MarkPlanTimedOut moves a stale plan to a terminal timeout error.
func (s *Store) MarkPlanTimedOut(ctx context.Context, id, message string) error {
	return s.SetPlanError(ctx, id, ErrorState{
		Kind:           ErrKindTimeout,
		Message:        message,
		FailedStep:     "janitor",
		RetrySuggested: false,
	})
}

// notifyPlan loads the fresh record and fans it out to watchers. Load
// failures are logged, not propagated: notification is best effort.
func (s *Store) notifyPlan(ctx context.Context, id, change string) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		s.logger.Warn().Err(err).Str("plan_id", id).Msg("Failed to load plan for notification")
		return
	}
	s.watcher.notify(PlanEvent{Change: change, Plan: plan})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*Plan, error) {
	var (
		plan          Plan
		dispatchOut   sql.NullString
		routeOut      sql.NullString
		inventoryOut  sql.NullString
		jobIDs        string
		createdJobIDs string
		errorState    sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&plan.ID, &plan.UserID, &plan.Date, &plan.Status, &plan.CurrentStep, &plan.ApprovalStep,
		&dispatchOut, &routeOut, &inventoryOut,
		&jobIDs, &createdJobIDs, &errorState, &plan.RetryCount,
		&plan.TotalDurationMins, &plan.TotalDistanceKm,
		&plan.CreatedAt, &plan.UpdatedAt, &startedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}

	if dispatchOut.Valid {
		plan.DispatchOutput = json.RawMessage(dispatchOut.String)
	}
	if routeOut.Valid {
		plan.RouteOutput = json.RawMessage(routeOut.String)
	}
	if inventoryOut.Valid {
		plan.InventoryOutput = json.RawMessage(inventoryOut.String)
	}
	if err := json.Unmarshal([]byte(jobIDs), &plan.JobIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job ids: %w", err)
	}
	if err := json.Unmarshal([]byte(createdJobIDs), &plan.CreatedJobIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal created job ids: %w", err)
	}
	if errorState.Valid && errorState.String != "" {
		var es ErrorState
		if err := json.Unmarshal([]byte(errorState.String), &es); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error state: %w", err)
		}
		plan.ErrorState = &es
	}
	if startedAt.Valid {
		t := startedAt.Time
		plan.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		plan.CompletedAt = &t
	}

	return &plan, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
