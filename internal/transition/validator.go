package transition

import (
	"fmt"
	"time"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// Error messages produced by the validator.
const (
	ErrCalendarAccess     = "Calendar access must be verified before continuing"
	ErrMeetingTypeMissing = "Meeting type must be selected before time collection"
	ErrMeetingTypeInvalid = "Meeting type must be online or physical"
	ErrTimeOrder          = "Start time must be before end time"
	ErrNoConflicts        = "Conflict resolution requires an availability result with conflicts"
	ErrOnlineAttendees    = "Online meetings require at least one attendee"
	ErrInvalidAttendees   = "All attendees must have valid email addresses"
	ErrTitleMissing       = "Meeting title is required"
	ErrLocationMissing    = "Location is required for physical meetings"
	ErrAgendaMissing      = "Agenda must be generated before approval"
	ErrAgendaNotApproved  = "Agenda must be approved before final approval"
	ErrNotApproved        = "Meeting must be approved before creation"
	ErrNotCreated         = "Meeting must be created before completion"
)

// Warnings produced by the validator. Warnings never block a transition.
const (
	WarnLongMeeting         = "Meeting is longer than 8 hours"
	WarnShortMeeting        = "Meeting is shorter than 5 minutes"
	WarnPhysicalNoAttendees = "No attendees added to physical meeting"
	WarnUnresolvedConflicts = "Selected time conflicts with existing events"
)

const (
	longMeetingThreshold  = 8 * time.Hour
	shortMeetingThreshold = 5 * time.Minute

	invalidTransitionFormat = "Invalid transition from %s to %s"
)

// InvalidTransitionMessage formats the error for an edge missing from the graph.
func InvalidTransitionMessage(from, to model.Step) string {
	return fmt.Sprintf(invalidTransitionFormat, from, to)
}

// TimeCollectionMessage is the error for entering step before time collection finished.
func TimeCollectionMessage(step model.Step) string {
	return fmt.Sprintf("Time collection must be completed before %s", label(step))
}

// TimesMissingMessage is the error for entering step without start and end time.
func TimesMissingMessage(step model.Step) string {
	return fmt.Sprintf("Start and end time must be set before %s", label(step))
}

// AttendeeCollectionMessage is the error for entering step before attendee collection finished.
func AttendeeCollectionMessage(step model.Step) string {
	return fmt.Sprintf("Attendee collection must be completed before %s", label(step))
}

// Result is the outcome of a validation.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	// Redirect is the earliest step whose requirements are unmet. It is
	// empty when the result is valid.
	Redirect model.Step `json:"redirect,omitempty"`
}

func (r *Result) fail(redirect model.Step, msg string) {
	r.IsValid = false
	r.Errors = append(r.Errors, msg)
	if r.Redirect == "" {
		r.Redirect = redirect
	}
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Validator decides whether the workflow may enter a step. It holds no
// mutable state and is safe for concurrent use.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// ValidateStep checks every requirement for occupying step given state. The
// requirements are cumulative: a step inherits the rules of all steps that
// precede it.
func (v *Validator) ValidateStep(step model.Step, state *model.WorkflowState) Result {
	r := Result{IsValid: true}
	if !step.Valid() {
		r.fail(state.CurrentStep, fmt.Sprintf("Unknown step %q", step))
		return r
	}

	at := step.Index()
	reaches := func(s model.Step) bool { return at >= s.Index() }
	meeting := &state.MeetingData

	if reaches(model.StepMeetingTypeSelection) {
		checkCalendarAccess(&r, state)
	}
	if reaches(model.StepTimeDateCollection) {
		checkMeetingType(&r, meeting)
	}
	if reaches(model.StepAvailabilityCheck) {
		checkTimes(&r, step, state)
	}
	if step == model.StepConflictResolution {
		if state.AvailabilityResult == nil || !state.AvailabilityResult.HasConflicts {
			r.fail(model.StepAvailabilityCheck, ErrNoConflicts)
		}
	}
	if reaches(model.StepMeetingDetailsCollection) && meeting.Type == model.MeetingTypeOnline {
		if !state.AttendeeCollectionComplete {
			r.fail(model.StepAttendeeCollection, AttendeeCollectionMessage(step))
		}
	}
	if reaches(model.StepValidation) {
		checkDetails(&r, meeting)
	}
	if reaches(model.StepAgendaApproval) && meeting.Agenda == nil {
		r.fail(model.StepAgendaGeneration, ErrAgendaMissing)
	}
	checkStatus(&r, step, meeting)

	return r
}

// ValidateTransition checks the from -> to edge and the requirements of to.
func (v *Validator) ValidateTransition(from, to model.Step, state *model.WorkflowState) Result {
	r := Result{IsValid: true}
	if !AllowedEdge(from, to) {
		r.fail(from, InvalidTransitionMessage(from, to))
	}

	target := v.ValidateStep(to, state)
	for _, msg := range target.Errors {
		r.fail(target.Redirect, msg)
	}
	r.Warnings = append(r.Warnings, target.Warnings...)
	return r
}

func checkCalendarAccess(r *Result, state *model.WorkflowState) {
	status := state.CalendarAccessStatus
	if status == nil || !status.HasAccess {
		r.fail(model.StepCalendarAccessVerification, ErrCalendarAccess)
	}
}

func checkMeetingType(r *Result, meeting *model.Meeting) {
	switch {
	case meeting.Type == "":
		r.fail(model.StepMeetingTypeSelection, ErrMeetingTypeMissing)
	case !meeting.Type.Valid():
		r.fail(model.StepMeetingTypeSelection, ErrMeetingTypeInvalid)
	}
}

func checkTimes(r *Result, step model.Step, state *model.WorkflowState) {
	meeting := &state.MeetingData
	if !state.TimeCollectionComplete {
		r.fail(model.StepTimeDateCollection, TimeCollectionMessage(step))
	}
	if !meeting.HasTimes() {
		r.fail(model.StepTimeDateCollection, TimesMissingMessage(step))
		return
	}

	duration := meeting.Duration()
	switch {
	case duration <= 0:
		r.fail(model.StepTimeDateCollection, ErrTimeOrder)
	case duration > longMeetingThreshold:
		r.warn(WarnLongMeeting)
	case duration < shortMeetingThreshold:
		r.warn(WarnShortMeeting)
	}

	if availability := state.AvailabilityResult; availability != nil && availability.HasConflicts &&
		!availability.Acknowledged && step.Index() > model.StepConflictResolution.Index() {
		r.warn(WarnUnresolvedConflicts)
	}
}

func checkDetails(r *Result, meeting *model.Meeting) {
	if meeting.Title == "" {
		r.fail(model.StepMeetingDetailsCollection, ErrTitleMissing)
	}

	switch meeting.Type {
	case model.MeetingTypeOnline:
		if len(meeting.Attendees) == 0 {
			r.fail(model.StepAttendeeCollection, ErrOnlineAttendees)
		} else if !meeting.AllAttendeesValidated() {
			r.fail(model.StepAttendeeCollection, ErrInvalidAttendees)
		}
	case model.MeetingTypePhysical:
		if meeting.Location == "" {
			r.fail(model.StepMeetingDetailsCollection, ErrLocationMissing)
		}
		if len(meeting.Attendees) == 0 {
			r.warn(WarnPhysicalNoAttendees)
		} else if !meeting.AllAttendeesValidated() {
			r.fail(model.StepMeetingDetailsCollection, ErrInvalidAttendees)
		}
	}
}

func checkStatus(r *Result, step model.Step, meeting *model.Meeting) {
	status := meeting.Status
	switch step {
	case model.StepApproval:
		if status != model.MeetingStatusPendingApproval && status != model.MeetingStatusApproved && status != model.MeetingStatusCreated {
			r.fail(model.StepAgendaApproval, ErrAgendaNotApproved)
		}
	case model.StepCreation:
		if status != model.MeetingStatusApproved && status != model.MeetingStatusCreated {
			r.fail(model.StepApproval, ErrNotApproved)
		}
	case model.StepCompleted:
		if status != model.MeetingStatusCreated || meeting.EventID == "" {
			r.fail(model.StepCreation, ErrNotCreated)
		}
	}
}

func label(step model.Step) string {
	switch step {
	case model.StepAvailabilityCheck:
		return "availability check"
	case model.StepConflictResolution:
		return "conflict resolution"
	case model.StepAttendeeCollection:
		return "attendee collection"
	case model.StepMeetingDetailsCollection:
		return "meeting details"
	case model.StepAgendaGeneration:
		return "agenda generation"
	case model.StepAgendaApproval:
		return "agenda approval"
	default:
		return string(step)
	}
}
