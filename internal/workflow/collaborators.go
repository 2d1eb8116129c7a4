package workflow

import (
	"context"
	"time"

	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// CalendarAccessVerifier checks that the user's calendar can be used.
type CalendarAccessVerifier interface {
	VerifyAccess(ctx context.Context, user model.User) (model.CalendarAccessStatus, error)
	RefreshAccessToken(ctx context.Context, user model.User) (RefreshResult, error)
}

// RefreshResult is the outcome of a token refresh.
type RefreshResult struct {
	Success  bool   `json:"success"`
	NewToken string `json:"-"`
}

// CalendarAvailability looks up conflicts and free slots.
type CalendarAvailability interface {
	CheckConflicts(ctx context.Context, user model.User, start, end time.Time) (ConflictResult, error)
	SuggestAlternatives(ctx context.Context, user model.User, preferredStart time.Time, durationMinutes, maxSuggestions int) ([]model.TimeSlot, error)
}

// ConflictResult lists the events overlapping a proposed slot.
type ConflictResult struct {
	HasConflicts      bool                  `json:"has_conflicts"`
	ConflictingEvents []model.CalendarEvent `json:"conflicting_events"`
	TotalConflicts    int                   `json:"total_conflicts"`
}

// AttendeeValidator checks attendee addresses. ValidateBatch returns one
// result per distinct address, in order of first appearance.
type AttendeeValidator interface {
	ValidateEmail(ctx context.Context, email string, user model.User) (attendee.Result, error)
	ValidateBatch(ctx context.Context, emails []string, user model.User) ([]attendee.Result, error)
}

// AgendaGenerator drafts and renders agendas.
type AgendaGenerator interface {
	GenerateAgenda(ctx context.Context, meeting model.Meeting, messages []model.ConversationMessage) (model.Agenda, error)
	FormatAgenda(agenda model.Agenda) string
}

// EventRequest is the calendar event to create. Fields named like the
// meeting's are copied from it.
type EventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees" copier:"-"`
	Agenda      string    `json:"agenda,omitempty" copier:"-"`
}

// CreatedEvent identifies a created calendar event.
type CreatedEvent struct {
	ID          string `json:"id"`
	MeetingLink string `json:"meeting_link,omitempty"`
	HTMLLink    string `json:"html_link"`
	Status      string `json:"status"`
}

// EventCreator creates calendar events.
type EventCreator interface {
	Create(ctx context.Context, user model.User, req EventRequest, meetingType model.MeetingType) (CreatedEvent, error)
}

// EventPublisher broadcasts workflow events to observers.
type EventPublisher interface {
	Publish(ctx context.Context, event model.WorkflowEvent) error
}

// Persister stores session snapshots in the background. Enqueue must not
// block; it reports false when the snapshot could not be queued. Failures
// after queueing are reported back through Orchestrator.ReportBackgroundError.
type Persister interface {
	Enqueue(state model.PersistedState) bool
}
