package workflow

import (
	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// UI components a client renders for the step awaiting input.
const (
	UICalendarAccess   = "calendar_access_prompt"
	UIMeetingType      = "meeting_type_selector"
	UITimePicker       = "time_picker"
	UIConflictResolver = "conflict_resolver"
	UIAttendeePicker   = "attendee_picker"
	UIDetailsForm      = "meeting_details_form"
	UIAgendaReview     = "agenda_review"
	UIMeetingApproval  = "meeting_approval"
	UIMeetingCreated   = "meeting_created"
)

// UIDirective tells the client what to render next.
type UIDirective struct {
	Component string `json:"component"`
	Data      any    `json:"data,omitempty"`
}

// Response is the result of one workflow operation.
type Response struct {
	Message           string       `json:"message"`
	UI                *UIDirective `json:"ui,omitempty"`
	CurrentStep       model.Step   `json:"current_step"`
	NextStep          model.Step   `json:"next_step"`
	ValidationErrors  []string     `json:"validation_errors,omitempty"`
	Warnings          []string     `json:"warnings,omitempty"`
	RequiresUserInput bool         `json:"requires_user_input"`
	IsComplete        bool         `json:"is_complete"`
}

// outcome is what a step handler produced. A non-empty next asks for an
// automatic transition.
type outcome struct {
	resp Response
	next model.Step
}

func prompt(message string, ui *UIDirective) outcome {
	return outcome{resp: Response{Message: message, UI: ui, RequiresUserInput: true}}
}

func advance(next model.Step, warnings ...string) outcome {
	return outcome{resp: Response{Warnings: warnings}, next: next}
}

func ui(component string, data any) *UIDirective {
	return &UIDirective{Component: component, Data: data}
}

// finish stamps the response with the state it leaves behind and records
// what the workflow is waiting for.
func (o *Orchestrator) finish(resp Response, warnings []string) Response {
	resp.Warnings = dedupe(append(warnings, resp.Warnings...))
	resp.ValidationErrors = dedupe(resp.ValidationErrors)
	resp.CurrentStep = o.state.CurrentStep
	if resp.NextStep == "" {
		resp.NextStep = o.state.CurrentStep
	}
	resp.IsComplete = o.state.IsComplete

	o.state.PendingActions = nil
	if resp.RequiresUserInput {
		kind := "input"
		if resp.UI != nil {
			kind = resp.UI.Component
		}
		o.state.PendingActions = []model.PendingAction{{
			Type:        kind,
			Step:        resp.NextStep,
			Description: resp.Message,
			CreatedAt:   o.now(),
		}}
	}
	return resp
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
