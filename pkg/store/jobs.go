package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts a job, assigning an id when none is set.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if job.Title == "" {
		return fmt.Errorf("job title is required")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = "pending"
	}

	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	items, err := json.Marshal(requiredItemsOrEmpty(job.RequiredItems))
	if err != nil {
		return fmt.Errorf("failed to marshal required items: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, title, job_type, priority, latitude, longitude, address,
		                  estimated_duration_mins, scheduled_date, status, required_items,
		                  instructions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Title, job.Type, job.Priority,
		job.Latitude, job.Longitude, job.Address,
		job.EstimatedDurationMins, job.ScheduledDate, job.Status, string(items),
		job.Instructions, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// GetJob retrieves a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	rows, err := s.queryJobs(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// GetJobsByIDs fetches the given jobs for a user, preserving the input
// order. Missing ids are an error: a plan referencing unknown jobs is
// not runnable.
func (s *Store) GetJobsByIDs(ctx context.Context, userID string, ids []string) ([]*Job, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("job id list is empty")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	jobs, err := s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE user_id = ? AND id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	ordered := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		ordered = append(ordered, j)
	}
	return ordered, nil
}

// ListJobsByDate returns all of a user's jobs scheduled on a date.
func (s *Store) ListJobsByDate(ctx context.Context, userID, date string) ([]*Job, error) {
	return s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE user_id = ? AND scheduled_date = ? ORDER BY created_at",
		userID, date,
	)
}

// UpdateJobStatus transitions a job's status.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return requireRow(res)
}

const jobColumns = `id, user_id, title, job_type, priority, latitude, longitude, address,
	estimated_duration_mins, scheduled_date, status, required_items, instructions,
	created_at, updated_at`

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job   Job
			items string
		)
		err := rows.Scan(
			&job.ID, &job.UserID, &job.Title, &job.Type, &job.Priority,
			&job.Latitude, &job.Longitude, &job.Address,
			&job.EstimatedDurationMins, &job.ScheduledDate, &job.Status,
			&items, &job.Instructions, &job.CreatedAt, &job.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &job.RequiredItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal required items: %w", err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func requiredItemsOrEmpty(items []RequiredItem) []RequiredItem {
	if items == nil {
		return []RequiredItem{}
	}
	return items
}
