// Package model defines data structures for the meeting assistant.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Mode is the conversational mode of a session.
type Mode string

const (
	ModeCasual     Mode = "casual"
	ModeScheduling Mode = "scheduling"
	ModeApproval   Mode = "approval"
)

// Action is an explicit user decision sent by the UI.
type Action string

const (
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionRegenerateAgenda Action = "regenerate_agenda"
)

// ConversationMessage is a single conversation turn. Messages are immutable
// once appended to a context.
type ConversationMessage struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries structured data submitted by UI components along
// with a message.
type MessageMetadata struct {
	MeetingType       MeetingType `json:"meeting_type,omitempty"`
	ChangeMeetingType bool        `json:"change_meeting_type,omitempty"`
	StartTime         *time.Time  `json:"start_time,omitempty"`
	EndTime           *time.Time  `json:"end_time,omitempty"`
	DurationMinutes   int         `json:"duration_minutes,omitempty"`
	Attendees         []string    `json:"attendees,omitempty"`
	Title             string      `json:"title,omitempty"`
	Location          string      `json:"location,omitempty"`
	Description       string      `json:"description,omitempty"`
	SelectedSlot      *int        `json:"selected_slot,omitempty"`
	KeepOriginalTime  bool        `json:"keep_original_time,omitempty"`
	Action            Action      `json:"action,omitempty"`
}

// User identifies the account on whose behalf collaborators are called.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}
