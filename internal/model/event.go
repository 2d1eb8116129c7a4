package model

import (
	"encoding/json"
	"time"
)

// EventType represents the type of workflow event.
type EventType string

const (
	EventTypeStepTransition     EventType = "step_transition"
	EventTypeTransitionRejected EventType = "transition_rejected"
	EventTypeMeetingCreated     EventType = "meeting_created"
	EventTypeError              EventType = "error"
)

// WorkflowEvent is published for observers of a session's workflow.
type WorkflowEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Type      EventType      `json:"type"`
	FromStep  Step           `json:"from_step,omitempty"`
	Step      Step           `json:"step"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PersistedState is the stored form of a session.
type PersistedState struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	CurrentMode      Mode            `json:"current_mode"`
	CurrentStep      Step            `json:"current_step"`
	MeetingData      json.RawMessage `json:"meeting_data"`
	CompressionLevel int             `json:"compression_level"`
	State            json.RawMessage `json:"state"`
	Messages         json.RawMessage `json:"messages,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
