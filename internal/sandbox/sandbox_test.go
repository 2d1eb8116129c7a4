package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
)

var (
	now  = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	user = model.User{ID: "u1", Email: "owner@example.com"}
)

func clock() time.Time { return now }

func TestCalendar_VerifyAccess(t *testing.T) {
	cal := NewCalendar(clock)
	ctx := context.Background()

	status, err := cal.VerifyAccess(ctx, user)
	require.NoError(t, err)
	assert.True(t, status.HasAccess)
	assert.Equal(t, now, status.CheckedAt)

	cal.ExpireToken(user.ID)
	status, err = cal.VerifyAccess(ctx, user)
	require.NoError(t, err)
	assert.False(t, status.HasAccess)
	assert.True(t, status.NeedsRefresh)

	refresh, err := cal.RefreshAccessToken(ctx, user)
	require.NoError(t, err)
	assert.True(t, refresh.Success)
	status, _ = cal.VerifyAccess(ctx, user)
	assert.True(t, status.HasAccess)

	cal.DenyAccess(user.ID, true)
	refresh, err = cal.RefreshAccessToken(ctx, user)
	require.NoError(t, err)
	assert.False(t, refresh.Success)
}

func TestCalendar_CheckConflicts(t *testing.T) {
	cal := NewCalendar(clock)
	start := now.Add(2 * time.Hour)
	cal.AddEvent(user.ID, model.CalendarEvent{Title: "Standup", Start: start.Add(15 * time.Minute), End: start.Add(45 * time.Minute)})
	cal.AddEvent("someone-else", model.CalendarEvent{Title: "Other", Start: start, End: start.Add(time.Hour)})

	res, err := cal.CheckConflicts(context.Background(), user, start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, res.HasConflicts)
	require.Len(t, res.ConflictingEvents, 1)
	assert.Equal(t, "Standup", res.ConflictingEvents[0].Title)

	// Touching intervals do not overlap.
	res, err = cal.CheckConflicts(context.Background(), user, start.Add(45*time.Minute), start.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.HasConflicts)

	_, err = cal.CheckConflicts(context.Background(), user, start, start)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestCalendar_SuggestAlternativesSkipsBusySlots(t *testing.T) {
	cal := NewCalendar(clock)
	start := now.Add(2 * time.Hour)
	cal.AddEvent(user.ID, model.CalendarEvent{Start: start, End: start.Add(90 * time.Minute)})

	slots, err := cal.SuggestAlternatives(context.Background(), user, start, 30, 3)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, start.Add(90*time.Minute), slots[0].Start)
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
		res, _ := cal.CheckConflicts(context.Background(), user, s.Start, s.End)
		assert.False(t, res.HasConflicts)
	}
}

func TestCalendar_FailNext(t *testing.T) {
	cal := NewCalendar(clock)
	boom := errors.New("boom")
	cal.FailNext("verify_access", boom)

	_, err := cal.VerifyAccess(context.Background(), user)
	assert.ErrorIs(t, err, boom)
	_, err = cal.VerifyAccess(context.Background(), user)
	assert.NoError(t, err)
}

func TestCalendar_Create(t *testing.T) {
	cal := NewCalendar(clock)
	start := now.Add(time.Hour)
	req := workflow.EventRequest{Title: "Sync", Start: start, End: start.Add(30 * time.Minute), Attendees: []string{"a@example.com"}}

	online, err := cal.Create(context.Background(), user, req, model.MeetingTypeOnline)
	require.NoError(t, err)
	assert.NotEmpty(t, online.ID)
	assert.NotEmpty(t, online.MeetingLink)
	assert.Contains(t, online.HTMLLink, online.ID)

	physical, err := cal.Create(context.Background(), user, req, model.MeetingTypePhysical)
	require.NoError(t, err)
	assert.Empty(t, physical.MeetingLink)

	assert.Len(t, cal.Created(), 2)
	assert.Len(t, cal.Events(user.ID), 2)

	_, err = cal.Create(context.Background(), user, workflow.EventRequest{Start: start, End: start}, model.MeetingTypeOnline)
	assert.ErrorIs(t, err, workflow.ErrValidation)
}

func TestDirectory_Lookup(t *testing.T) {
	dir := NewDirectory("example.com")
	dir.Add(Person{Email: "Ana@Partner.org", FirstName: "Ana", LastName: "Lima"})
	ctx := context.Background()

	r, err := dir.Lookup(ctx, "ana@partner.org", user)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.Equal(t, "Lima", r.LastName)

	r, err = dir.Lookup(ctx, "john.smith@example.com", user)
	require.NoError(t, err)
	assert.True(t, r.Exists)
	assert.Equal(t, "John", r.FirstName)
	assert.Equal(t, "Smith", r.LastName)

	r, err = dir.Lookup(ctx, "ghost@nowhere.net", user)
	require.NoError(t, err)
	assert.False(t, r.Exists)
	assert.Equal(t, int64(3), dir.Lookups())
}
