package model

import (
	"time"
)

// Step is a named stage of the meeting creation workflow.
type Step string

const (
	StepIntentDetection            Step = "intent_detection"
	StepCalendarAccessVerification Step = "calendar_access_verification"
	StepMeetingTypeSelection       Step = "meeting_type_selection"
	StepTimeDateCollection         Step = "time_date_collection"
	StepAvailabilityCheck          Step = "availability_check"
	StepConflictResolution         Step = "conflict_resolution"
	StepAttendeeCollection         Step = "attendee_collection"
	StepMeetingDetailsCollection   Step = "meeting_details_collection"
	StepValidation                 Step = "validation"
	StepAgendaGeneration           Step = "agenda_generation"
	StepAgendaApproval             Step = "agenda_approval"
	StepApproval                   Step = "approval"
	StepCreation                   Step = "creation"
	StepCompleted                  Step = "completed"
)

// Steps lists every step in canonical order.
var Steps = []Step{
	StepIntentDetection,
	StepCalendarAccessVerification,
	StepMeetingTypeSelection,
	StepTimeDateCollection,
	StepAvailabilityCheck,
	StepConflictResolution,
	StepAttendeeCollection,
	StepMeetingDetailsCollection,
	StepValidation,
	StepAgendaGeneration,
	StepAgendaApproval,
	StepApproval,
	StepCreation,
	StepCompleted,
}

// Index returns the canonical position of s, or -1 for an unknown step.
func (s Step) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s.Index() >= 0
}

// CalendarAccessStatus is the result of the last calendar access check.
type CalendarAccessStatus struct {
	HasAccess    bool      `json:"has_access"`
	NeedsRefresh bool      `json:"needs_refresh"`
	TokenValid   bool      `json:"token_valid"`
	Error        string    `json:"error,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// CalendarEvent is an existing event on the user's calendar.
type CalendarEvent struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailabilityResult is the outcome of the last availability check for the
// currently selected time.
type AvailabilityResult struct {
	HasConflicts      bool            `json:"has_conflicts"`
	ConflictingEvents []CalendarEvent `json:"conflicting_events,omitempty"`
	TotalConflicts    int             `json:"total_conflicts"`
	Alternatives      []TimeSlot      `json:"alternatives,omitempty"`
	Acknowledged      bool            `json:"acknowledged"`
	CheckedAt         time.Time       `json:"checked_at"`
}

// ValidationRecord is one transition validator outcome.
type ValidationRecord struct {
	Step     Step      `json:"step"`
	IsValid  bool      `json:"is_valid"`
	Errors   []string  `json:"errors,omitempty"`
	Warnings []string  `json:"warnings,omitempty"`
	At       time.Time `json:"at"`
}

// PendingAction is something the workflow is waiting for the user to do.
type PendingAction struct {
	Type        string    `json:"type"`
	Step        Step      `json:"step"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateError is an error recorded against a session.
type StateError struct {
	Kind       string    `json:"kind"`
	Step       Step      `json:"step"`
	Message    string    `json:"message"`
	Background bool      `json:"background"`
	At         time.Time `json:"at"`
}

// WorkflowState is the mutable aggregate owned by one session's orchestrator.
type WorkflowState struct {
	SessionID   string  `json:"session_id"`
	UserID      string  `json:"user_id"`
	CurrentStep Step    `json:"current_step"`
	MeetingData Meeting `json:"meeting_data"`

	ValidationResults []ValidationRecord `json:"validation_results,omitempty"`
	PendingActions    []PendingAction    `json:"pending_actions,omitempty"`
	Errors            []StateError       `json:"errors,omitempty"`

	CalendarAccessStatus *CalendarAccessStatus `json:"calendar_access_status,omitempty"`
	AvailabilityResult   *AvailabilityResult   `json:"availability_result,omitempty"`

	TimeCollectionComplete     bool `json:"time_collection_complete"`
	AttendeeCollectionComplete bool `json:"attendee_collection_complete"`
	MeetingTypeLocked          bool `json:"meeting_type_locked"`
	IsComplete                 bool `json:"is_complete"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowState returns a state positioned at intent detection.
func NewWorkflowState(sessionID, userID string, now time.Time) *WorkflowState {
	return &WorkflowState{
		SessionID:   sessionID,
		UserID:      userID,
		CurrentStep: StepIntentDetection,
		MeetingData: Meeting{Status: MeetingStatusDraft},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy of s.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.MeetingData = s.MeetingData.Clone()
	c.ValidationResults = cloneValidationRecords(s.ValidationResults)
	c.PendingActions = append([]PendingAction(nil), s.PendingActions...)
	c.Errors = append([]StateError(nil), s.Errors...)
	if s.CalendarAccessStatus != nil {
		status := *s.CalendarAccessStatus
		c.CalendarAccessStatus = &status
	}
	if s.AvailabilityResult != nil {
		result := *s.AvailabilityResult
		result.ConflictingEvents = append([]CalendarEvent(nil), s.AvailabilityResult.ConflictingEvents...)
		result.Alternatives = append([]TimeSlot(nil), s.AvailabilityResult.Alternatives...)
		c.AvailabilityResult = &result
	}
	return &c
}

// Clone returns a deep copy of m.
func (m *Meeting) Clone() Meeting {
	c := *m
	if m.StartTime != nil {
		t := *m.StartTime
		c.StartTime = &t
	}
	if m.EndTime != nil {
		t := *m.EndTime
		c.EndTime = &t
	}
	c.Attendees = append([]Attendee(nil), m.Attendees...)
	if m.Agenda != nil {
		agenda := *m.Agenda
		agenda.Topics = append([]AgendaTopic(nil), m.Agenda.Topics...)
		agenda.ActionItems = append([]string(nil), m.Agenda.ActionItems...)
		c.Agenda = &agenda
	}
	return c
}

func cloneValidationRecords(records []ValidationRecord) []ValidationRecord {
	if records == nil {
		return nil
	}
	out := make([]ValidationRecord, len(records))
	for i, r := range records {
		r.Errors = append([]string(nil), r.Errors...)
		r.Warnings = append([]string(nil), r.Warnings...)
		out[i] = r
	}
	return out
}
