// Package sandbox provides in-process stand-ins for the calendar and
// directory services a workflow talks to. They keep everything in memory
// and are used for local runs and tests.
package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
)

const (
	slotStep   = 30 * time.Minute
	searchSpan = 7 * 24 * time.Hour
)

// Calendar is an in-memory calendar for every user. The zero value is not
// usable; create one with NewCalendar.
type Calendar struct {
	mu       sync.Mutex
	now      func() time.Time
	events   map[string][]model.CalendarEvent
	denied   map[string]bool
	expired  map[string]bool
	failures map[string][]error
	created  []workflow.EventRequest
}

var (
	_ workflow.CalendarAccessVerifier = (*Calendar)(nil)
	_ workflow.CalendarAvailability   = (*Calendar)(nil)
	_ workflow.EventCreator           = (*Calendar)(nil)
)

// NewCalendar creates an empty calendar. A nil now uses time.Now.
func NewCalendar(now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	return &Calendar{
		now:      now,
		events:   make(map[string][]model.CalendarEvent),
		denied:   make(map[string]bool),
		expired:  make(map[string]bool),
		failures: make(map[string][]error),
	}
}

// AddEvent puts an existing event on userID's calendar.
func (c *Calendar) AddEvent(userID string, e model.CalendarEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	c.events[userID] = append(c.events[userID], e)
}

// DenyAccess makes access checks for userID fail until restored.
func (c *Calendar) DenyAccess(userID string, denied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.denied[userID] = denied
}

// ExpireToken marks userID's token as needing a refresh.
func (c *Calendar) ExpireToken(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired[userID] = true
}

// FailNext makes the next call of op return err. Ops are verify_access,
// refresh_token, check_conflicts, suggest_alternatives and create.
func (c *Calendar) FailNext(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], err)
}

func (c *Calendar) takeFailure(op string) error {
	queue := c.failures[op]
	if len(queue) == 0 {
		return nil
	}
	c.failures[op] = queue[1:]
	return queue[0]
}

// Created returns the event requests received so far.
func (c *Calendar) Created() []workflow.EventRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]workflow.EventRequest(nil), c.created...)
}

// Events returns userID's events ordered by start.
func (c *Calendar) Events(userID string) []model.CalendarEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]model.CalendarEvent(nil), c.events[userID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (c *Calendar) VerifyAccess(ctx context.Context, user model.User) (model.CalendarAccessStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.CalendarAccessStatus{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("verify_access"); err != nil {
		return model.CalendarAccessStatus{}, err
	}

	status := model.CalendarAccessStatus{CheckedAt: c.now()}
	switch {
	case c.denied[user.ID]:
		status.Error = "calendar permission not granted"
	case c.expired[user.ID]:
		status.NeedsRefresh = true
		status.Error = "access token expired"
	default:
		status.HasAccess = true
		status.TokenValid = true
	}
	return status, nil
}

func (c *Calendar) RefreshAccessToken(ctx context.Context, user model.User) (workflow.RefreshResult, error) {
	if err := ctx.Err(); err != nil {
		return workflow.RefreshResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("refresh_token"); err != nil {
		return workflow.RefreshResult{}, err
	}
	if c.denied[user.ID] {
		return workflow.RefreshResult{}, nil
	}
	delete(c.expired, user.ID)
	return workflow.RefreshResult{Success: true, NewToken: uuid.NewString()}, nil
}

func (c *Calendar) CheckConflicts(ctx context.Context, user model.User, start, end time.Time) (workflow.ConflictResult, error) {
	if err := ctx.Err(); err != nil {
		return workflow.ConflictResult{}, err
	}
	if !start.Before(end) {
		return workflow.ConflictResult{}, workflow.NewError(workflow.KindValidation, "", "start must be before end")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("check_conflicts"); err != nil {
		return workflow.ConflictResult{}, err
	}

	conflicts := c.overlapping(user.ID, start, end)
	return workflow.ConflictResult{
		HasConflicts:      len(conflicts) > 0,
		ConflictingEvents: conflicts,
		TotalConflicts:    len(conflicts),
	}, nil
}

func (c *Calendar) overlapping(userID string, start, end time.Time) []model.CalendarEvent {
	var out []model.CalendarEvent
	for _, e := range c.events[userID] {
		if e.Start.Before(end) && start.Before(e.End) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// SuggestAlternatives walks forward from preferredStart in half-hour steps
// and returns the first free slots of the requested length.
func (c *Calendar) SuggestAlternatives(ctx context.Context, user model.User, preferredStart time.Time, durationMinutes, maxSuggestions int) ([]model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 || maxSuggestions <= 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("suggest_alternatives"); err != nil {
		return nil, err
	}

	d := time.Duration(durationMinutes) * time.Minute
	from := preferredStart
	if now := c.now(); from.Before(now) {
		from = now.Truncate(slotStep).Add(slotStep)
	}

	var slots []model.TimeSlot
	for s := from.Add(slotStep); s.Before(preferredStart.Add(searchSpan)) && len(slots) < maxSuggestions; s = s.Add(slotStep) {
		if len(c.overlapping(user.ID, s, s.Add(d))) == 0 {
			slots = append(slots, model.TimeSlot{Start: s, End: s.Add(d)})
		}
	}
	return slots, nil
}

func (c *Calendar) Create(ctx context.Context, user model.User, req workflow.EventRequest, meetingType model.MeetingType) (workflow.CreatedEvent, error) {
	if err := ctx.Err(); err != nil {
		return workflow.CreatedEvent{}, err
	}
	if req.Title == "" || !req.Start.Before(req.End) {
		return workflow.CreatedEvent{}, workflow.NewError(workflow.KindValidation, "", "event needs a title and a positive duration")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure("create"); err != nil {
		return workflow.CreatedEvent{}, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	c.events[user.ID] = append(c.events[user.ID], model.CalendarEvent{ID: id, Title: req.Title, Start: req.Start, End: req.End})
	c.created = append(c.created, req)

	created := workflow.CreatedEvent{
		ID:       id,
		HTMLLink: fmt.Sprintf("https://calendar.example.com/event/%s", id),
		Status:   "confirmed",
	}
	if meetingType == model.MeetingTypeOnline {
		created.MeetingLink = fmt.Sprintf("https://meet.example.com/%s", id[len(id)-12:])
	}
	return created, nil
}
