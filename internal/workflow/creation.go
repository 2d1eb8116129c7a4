package workflow

import (
	"fmt"
	"sort"

	"github.com/jinzhu/copier"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
)

// ErrStartInPast is reported when the meeting would start before now.
const ErrStartInPast = "Meeting start time is in the past"

type requirement struct {
	step    model.Step
	message string
}

// validateMeetingCreationRequirements re-checks the whole meeting right
// before the calendar event is created. Problems are ordered by the step
// that fixes them.
func (o *Orchestrator) validateMeetingCreationRequirements() (problems []requirement, warnings []string) {
	m := &o.state.MeetingData
	fail := func(step model.Step, msg string) {
		problems = append(problems, requirement{step: step, message: msg})
	}

	if !m.Type.Valid() {
		fail(model.StepMeetingTypeSelection, transition.ErrMeetingTypeInvalid)
	}
	switch {
	case !m.HasTimes():
		fail(model.StepTimeDateCollection, transition.TimesMissingMessage(model.StepCreation))
	case m.Duration() <= 0:
		fail(model.StepTimeDateCollection, transition.ErrTimeOrder)
	case m.StartTime.Before(o.now()):
		fail(model.StepTimeDateCollection, ErrStartInPast)
	}

	switch m.Type {
	case model.MeetingTypeOnline:
		if len(m.Attendees) == 0 {
			fail(model.StepAttendeeCollection, transition.ErrOnlineAttendees)
		} else if !m.AllAttendeesValidated() {
			fail(model.StepAttendeeCollection, transition.ErrInvalidAttendees)
		}
	case model.MeetingTypePhysical:
		if m.Location == "" {
			fail(model.StepMeetingDetailsCollection, transition.ErrLocationMissing)
		}
		if !m.AllAttendeesValidated() {
			fail(model.StepMeetingDetailsCollection, transition.ErrInvalidAttendees)
		}
	}
	if m.Title == "" {
		fail(model.StepMeetingDetailsCollection, transition.ErrTitleMissing)
	}
	if m.Status != model.MeetingStatusApproved {
		fail(model.StepApproval, transition.ErrNotApproved)
	}

	if ar := o.state.AvailabilityResult; ar != nil && ar.HasConflicts && !ar.Acknowledged {
		warnings = append(warnings, transition.WarnUnresolvedConflicts)
	}

	// Earliest step first so recovery lands there.
	sort.SliceStable(problems, func(i, j int) bool {
		return problems[i].step.Index() < problems[j].step.Index()
	})
	return problems, warnings
}

// eventRequest builds the calendar event for the current meeting.
func (o *Orchestrator) eventRequest() (EventRequest, error) {
	m := &o.state.MeetingData
	var req EventRequest
	if err := copier.Copy(&req, m); err != nil {
		return EventRequest{}, fmt.Errorf("copy meeting: %w", err)
	}

	req.Start, req.End = *m.StartTime, *m.EndTime
	req.Attendees = make([]string, len(m.Attendees))
	for i, a := range m.Attendees {
		req.Attendees[i] = a.Email
	}
	if m.Agenda != nil {
		req.Agenda = o.formatAgenda(*m.Agenda)
	}
	return req, nil
}
