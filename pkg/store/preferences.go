package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetPreferencesRaw returns the stored settings JSON for a user, or nil
// when none have been saved. Merging with defaults is the caller's
// concern (pkg/prefs).
func (s *Store) GetPreferencesRaw(ctx context.Context, userID string) (json.RawMessage, error) {
	var settings string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings FROM preferences WHERE user_id = ?", userID,
	).Scan(&settings)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	return json.RawMessage(settings), nil
}

// SavePreferencesRaw stores the settings JSON for a user.
func (s *Store) SavePreferencesRaw(ctx context.Context, userID string, settings json.RawMessage) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if !json.Valid(settings) {
		return fmt.Errorf("settings payload is not valid JSON")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, settings, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			settings = excluded.settings,
			updated_at = excluded.updated_at`,
		userID, string(settings), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
