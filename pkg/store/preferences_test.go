package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPreferencesRawAbsent(t *testing.T) {
	s := newTestStore(t)

	raw, err := s.GetPreferencesRaw(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"work_start":"07:30","max_jobs_per_day":6}`)
	require.NoError(t, s.SavePreferencesRaw(ctx, "u1", payload))

	raw, err := s.GetPreferencesRaw(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(raw))

	// A second save replaces the previous settings.
	require.NoError(t, s.SavePreferencesRaw(ctx, "u1", json.RawMessage(`{"work_start":"08:00"}`)))

	raw, err = s.GetPreferencesRaw(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"work_start":"08:00"}`, string(raw))
}

func TestSavePreferencesRawRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.SavePreferencesRaw(ctx, "", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user id")

	err = s.SavePreferencesRaw(ctx, "u1", json.RawMessage(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid JSON")
}
