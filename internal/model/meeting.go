package model

import (
	"strings"
	"time"
)

// MeetingType is either online or physical.
type MeetingType string

const (
	MeetingTypeOnline   MeetingType = "online"
	MeetingTypePhysical MeetingType = "physical"
)

// Valid reports whether t is a known meeting type.
func (t MeetingType) Valid() bool {
	return t == MeetingTypeOnline || t == MeetingTypePhysical
}

// MeetingStatus is the approval lifecycle of a meeting draft.
type MeetingStatus string

const (
	MeetingStatusDraft           MeetingStatus = "draft"
	MeetingStatusPendingApproval MeetingStatus = "pending_approval"
	MeetingStatusApproved        MeetingStatus = "approved"
	MeetingStatusCreated         MeetingStatus = "created"
)

// Attendee is a meeting participant. Email is unique within a meeting,
// compared case-insensitively.
type Attendee struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	IsValidated bool   `json:"is_validated"`
	IsRequired  bool   `json:"is_required"`
}

// AgendaTopic is one section of an agenda.
type AgendaTopic struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description,omitempty"`
}

// Agenda sources.
const (
	AgendaSourceAI       = "ai"
	AgendaSourceTemplate = "template"
)

// Agenda is the structured agenda attached to a meeting.
type Agenda struct {
	Title           string        `json:"title"`
	DurationMinutes int           `json:"duration_minutes"`
	Topics          []AgendaTopic `json:"topics"`
	ActionItems     []string      `json:"action_items,omitempty"`
	Source          string        `json:"source"`
}

// TimeSlot is a candidate meeting window.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Meeting is the meeting being assembled by a workflow. All fields are
// optional until the workflow reaches creation.
type Meeting struct {
	Title       string        `json:"title,omitempty"`
	Type        MeetingType   `json:"type,omitempty"`
	Location    string        `json:"location,omitempty"`
	Description string        `json:"description,omitempty"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Attendees   []Attendee    `json:"attendees,omitempty"`
	Agenda      *Agenda       `json:"agenda,omitempty"`
	Status      MeetingStatus `json:"status"`
	EventID     string        `json:"event_id,omitempty"`
	MeetingLink string        `json:"meeting_link,omitempty"`
	HTMLLink    string        `json:"html_link,omitempty"`
}

// HasTimes reports whether both start and end are set.
func (m *Meeting) HasTimes() bool {
	return m.StartTime != nil && m.EndTime != nil
}

// Duration returns end minus start, or zero when either is unset.
func (m *Meeting) Duration() time.Duration {
	if !m.HasTimes() {
		return 0
	}
	return m.EndTime.Sub(*m.StartTime)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasAttendee reports whether email is already an attendee.
func (m *Meeting) HasAttendee(email string) bool {
	email = NormalizeEmail(email)
	for _, a := range m.Attendees {
		if NormalizeEmail(a.Email) == email {
			return true
		}
	}
	return false
}

// AddAttendee appends a required, unvalidated attendee unless the address is
// empty or already present. It reports whether the attendee was added.
func (m *Meeting) AddAttendee(email string) bool {
	email = NormalizeEmail(email)
	if email == "" || m.HasAttendee(email) {
		return false
	}
	m.Attendees = append(m.Attendees, Attendee{Email: email, IsRequired: true})
	return true
}

// AllAttendeesValidated reports whether every attendee passed validation.
// It is true for an empty list.
func (m *Meeting) AllAttendeesValidated() bool {
	for _, a := range m.Attendees {
		if !a.IsValidated {
			return false
		}
	}
	return true
}
