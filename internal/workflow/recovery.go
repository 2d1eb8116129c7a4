package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
)

// User-facing recovery messages.
const (
	MsgReconnectCalendar = "I need access to your calendar to continue. Please reconnect it."
	MsgServiceBusy       = "The calendar service is busy right now. I'll pick up where we left off on your next message."
	MsgTryAgain          = "Something went wrong on my side. Please try again."
)

// recover turns a failed step into a response according to the error's
// kind and records the error on the state.
func (o *Orchestrator) recover(ctx context.Context, err error) outcome {
	kind := KindOf(err)
	o.recordError(kind, err.Error(), false)
	o.log.Warn("step failed",
		zap.String("step", string(o.state.CurrentStep)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)

	switch kind {
	case KindAuthentication:
		status := model.CalendarAccessStatus{NeedsRefresh: true, Error: err.Error(), CheckedAt: o.now()}
		if s := o.state.CalendarAccessStatus; s != nil {
			status.TokenValid = s.TokenValid
		}
		o.state.CalendarAccessStatus = &status
		o.moveForRecovery(ctx, model.StepCalendarAccessVerification)
		out := prompt(MsgReconnectCalendar, ui(UICalendarAccess, map[string]any{"needs_refresh": true}))
		out.resp.ValidationErrors = []string{transition.ErrCalendarAccess}
		return out

	case KindQuotaExceeded, KindNetworkTimeout:
		return outcome{resp: Response{Message: MsgServiceBusy, Warnings: []string{err.Error()}}}

	case KindValidation:
		var we *Error
		target := model.StepMeetingDetailsCollection
		problems := []string{err.Error()}
		if errors.As(err, &we) {
			if we.Step != "" {
				target = we.Step
			}
			if len(we.Problems) > 0 {
				problems = we.Problems
			} else if we.Message != "" {
				problems = []string{we.Message}
			}
		}
		o.moveForRecovery(ctx, target)
		out := prompt(problems[0], nil)
		out.resp.ValidationErrors = problems
		return out

	default:
		return prompt(MsgTryAgain, nil)
	}
}

// moveForRecovery takes the workflow back to target when the graph has an
// edge there. It reports whether the step changed.
func (o *Orchestrator) moveForRecovery(ctx context.Context, target model.Step) bool {
	current := o.state.CurrentStep
	if target == current || !transition.AllowedEdge(current, target) {
		return false
	}
	return o.transition(ctx, current, target, "recovery").IsValid
}
