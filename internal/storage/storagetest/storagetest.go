// Package storagetest holds the behavior every storage.Store must share.
package storagetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
)

// Snapshot returns a minimal, valid snapshot.
func Snapshot(id, userID string, updated time.Time) model.PersistedState {
	return model.PersistedState{
		ID:               id,
		UserID:           userID,
		CurrentMode:      model.ModeScheduling,
		CurrentStep:      model.StepTimeDateCollection,
		MeetingData:      json.RawMessage(`{"type":"online","status":"draft"}`),
		CompressionLevel: 1,
		State:            json.RawMessage(`{"session_id":"` + id + `","current_step":"time_date_collection"}`),
		Messages:         json.RawMessage(`[{"id":"m1","role":"user","content":"hi"}]`),
		CreatedAt:        updated.Add(-time.Hour),
		UpdatedAt:        updated,
	}
}

// Run exercises a store produced by open.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	t.Run("missing session", func(t *testing.T) {
		s := open(t)
		_, err := s.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, s.Delete(context.Background(), "nope"), storage.ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		want := Snapshot("s1", "u1", base)
		require.NoError(t, s.Save(ctx, want))

		got, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, want.UserID, got.UserID)
		assert.Equal(t, want.CurrentStep, got.CurrentStep)
		assert.Equal(t, want.CurrentMode, got.CurrentMode)
		assert.Equal(t, want.CompressionLevel, got.CompressionLevel)
		assert.JSONEq(t, string(want.State), string(got.State))
		assert.JSONEq(t, string(want.MeetingData), string(got.MeetingData))
		assert.JSONEq(t, string(want.Messages), string(got.Messages))
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
	})

	t.Run("save overwrites", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, Snapshot("s1", "u1", base)))
		next := Snapshot("s1", "u1", base.Add(time.Minute))
		next.CurrentStep = model.StepAttendeeCollection
		require.NoError(t, s.Save(ctx, next))

		got, err := s.Load(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, model.StepAttendeeCollection, got.CurrentStep)
	})

	t.Run("list by user", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, Snapshot("old", "u1", base)))
		require.NoError(t, s.Save(ctx, Snapshot("new", "u1", base.Add(time.Hour))))
		require.NoError(t, s.Save(ctx, Snapshot("other", "u2", base)))

		list, err := s.ListByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "new", list[0].ID)
		assert.Equal(t, "old", list[1].ID)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, Snapshot("s1", "u1", base)))
		require.NoError(t, s.Delete(ctx, "s1"))
		_, err := s.Load(ctx, "s1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}
