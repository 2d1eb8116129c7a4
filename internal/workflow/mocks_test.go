package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/capitalize-ai/meeting-assistant/internal/agenda"
	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

var (
	testNow  = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	testUser = model.User{ID: "u1", Email: "owner@example.com"}
)

type mockAccess struct{ mock.Mock }

func (m *mockAccess) VerifyAccess(ctx context.Context, user model.User) (model.CalendarAccessStatus, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.CalendarAccessStatus), args.Error(1)
}

func (m *mockAccess) RefreshAccessToken(ctx context.Context, user model.User) (RefreshResult, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(RefreshResult), args.Error(1)
}

type mockAvailability struct{ mock.Mock }

func (m *mockAvailability) CheckConflicts(ctx context.Context, user model.User, start, end time.Time) (ConflictResult, error) {
	args := m.Called(ctx, user, start, end)
	return args.Get(0).(ConflictResult), args.Error(1)
}

func (m *mockAvailability) SuggestAlternatives(ctx context.Context, user model.User, preferredStart time.Time, durationMinutes, maxSuggestions int) ([]model.TimeSlot, error) {
	args := m.Called(ctx, user, preferredStart, durationMinutes, maxSuggestions)
	slots, _ := args.Get(0).([]model.TimeSlot)
	return slots, args.Error(1)
}

type mockAttendees struct{ mock.Mock }

func (m *mockAttendees) ValidateEmail(ctx context.Context, email string, user model.User) (attendee.Result, error) {
	args := m.Called(ctx, email, user)
	return args.Get(0).(attendee.Result), args.Error(1)
}

func (m *mockAttendees) ValidateBatch(ctx context.Context, emails []string, user model.User) ([]attendee.Result, error) {
	args := m.Called(ctx, emails, user)
	results, _ := args.Get(0).([]attendee.Result)
	return results, args.Error(1)
}

type mockAgenda struct{ mock.Mock }

func (m *mockAgenda) GenerateAgenda(ctx context.Context, meeting model.Meeting, messages []model.ConversationMessage) (model.Agenda, error) {
	args := m.Called(ctx, meeting, messages)
	return args.Get(0).(model.Agenda), args.Error(1)
}

func (m *mockAgenda) FormatAgenda(a model.Agenda) string {
	return agenda.FormatAgenda(a)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Create(ctx context.Context, user model.User, req EventRequest, meetingType model.MeetingType) (CreatedEvent, error) {
	args := m.Called(ctx, user, req, meetingType)
	return args.Get(0).(CreatedEvent), args.Error(1)
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []model.WorkflowEvent
}

func (p *fakePublisher) Publish(_ context.Context, event model.WorkflowEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakePersister struct {
	full   bool
	states []model.PersistedState
}

func (p *fakePersister) Enqueue(s model.PersistedState) bool {
	if p.full {
		return false
	}
	p.states = append(p.states, s)
	return true
}

func newOrchestrator(state *model.WorkflowState, deps Dependencies) *Orchestrator {
	deps.Now = func() time.Time { return testNow }
	if deps.Options == (Options{}) {
		deps.Options = DefaultOptions()
	}
	conv := conversation.New(conversation.DefaultOptions(), conversation.NewKeywordClassifier())
	return New(deps, testUser, state, conv)
}

func validAccess() *mockAccess {
	m := &mockAccess{}
	m.On("VerifyAccess", mock.Anything, testUser).Return(model.CalendarAccessStatus{HasAccess: true, TokenValid: true}, nil)
	return m
}

func freeCalendar() *mockAvailability {
	m := &mockAvailability{}
	m.On("CheckConflicts", mock.Anything, testUser, mock.Anything, mock.Anything).Return(ConflictResult{}, nil)
	return m
}

func allValid(emails ...string) []attendee.Result {
	out := make([]attendee.Result, len(emails))
	for i, e := range emails {
		out[i] = attendee.Result{Email: e, IsValid: true, Exists: true}
	}
	return out
}

var (
	slotStart = testNow.Add(24 * time.Hour)
	slotEnd   = slotStart.Add(30 * time.Minute)
)

// readyState returns an online meeting whose data satisfies every step
// before step, positioned at step.
func readyState(step model.Step) *model.WorkflowState {
	s := model.NewWorkflowState("s1", testUser.ID, testNow)
	s.CurrentStep = step
	s.CalendarAccessStatus = &model.CalendarAccessStatus{HasAccess: true, TokenValid: true, CheckedAt: testNow}
	m := &s.MeetingData
	m.Type = model.MeetingTypeOnline
	s.MeetingTypeLocked = step.Index() > model.StepMeetingTypeSelection.Index()

	at := step.Index()
	if at > model.StepTimeDateCollection.Index() {
		start, end := slotStart, slotEnd
		m.StartTime, m.EndTime = &start, &end
		s.TimeCollectionComplete = true
	}
	if at > model.StepAttendeeCollection.Index() {
		m.Attendees = []model.Attendee{{Email: "ana@example.com", IsValidated: true, IsRequired: true}}
		s.AttendeeCollectionComplete = true
	}
	if at > model.StepMeetingDetailsCollection.Index() {
		m.Title = "Roadmap sync"
	}
	if at > model.StepAgendaGeneration.Index() {
		a := agenda.Template(*m)
		m.Agenda = &a
	}
	if at > model.StepAgendaApproval.Index() {
		m.Status = model.MeetingStatusPendingApproval
	}
	if at > model.StepApproval.Index() {
		m.Status = model.MeetingStatusApproved
	}
	if at > model.StepCreation.Index() {
		m.Status = model.MeetingStatusCreated
		m.EventID = "evt-1"
	}
	return s
}
