// Package transition holds the business rules that gate every workflow step
// change. Everything here is a pure function of the workflow state.
package transition

import (
	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// forward lists the regular edges of the step graph.
var forward = map[model.Step][]model.Step{
	model.StepIntentDetection:            {model.StepCalendarAccessVerification},
	model.StepCalendarAccessVerification: {model.StepMeetingTypeSelection},
	model.StepMeetingTypeSelection:       {model.StepTimeDateCollection},
	model.StepTimeDateCollection:         {model.StepAvailabilityCheck, model.StepAttendeeCollection, model.StepMeetingDetailsCollection},
	model.StepAvailabilityCheck:          {model.StepConflictResolution, model.StepAttendeeCollection, model.StepMeetingDetailsCollection},
	model.StepConflictResolution:         {model.StepAvailabilityCheck, model.StepAttendeeCollection, model.StepMeetingDetailsCollection},
	model.StepAttendeeCollection:         {model.StepMeetingDetailsCollection},
	model.StepMeetingDetailsCollection:   {model.StepValidation},
	model.StepValidation:                 {model.StepAgendaGeneration},
	model.StepAgendaGeneration:           {model.StepAgendaApproval},
	model.StepAgendaApproval:             {model.StepApproval, model.StepAgendaGeneration},
	model.StepApproval:                   {model.StepCreation},
	model.StepCreation:                   {model.StepCompleted},
}

// recoveryTargets are the steps a later step may fall back to when an error
// or a data change requires the user to revisit them.
var recoveryTargets = []model.Step{
	model.StepCalendarAccessVerification,
	model.StepTimeDateCollection,
	model.StepAttendeeCollection,
	model.StepMeetingDetailsCollection,
}

// IsForward reports whether from -> to is a regular edge.
func IsForward(from, to model.Step) bool {
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsRecovery reports whether from -> to is a recovery edge back to an
// earlier collection step.
func IsRecovery(from, to model.Step) bool {
	if from == model.StepCompleted || from.Index() <= to.Index() {
		return false
	}
	for _, target := range recoveryTargets {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedEdge reports whether the graph contains from -> to at all.
func AllowedEdge(from, to model.Step) bool {
	return IsForward(from, to) || IsRecovery(from, to)
}

// Next returns the regular successors of step.
func Next(step model.Step) []model.Step {
	return append([]model.Step(nil), forward[step]...)
}
