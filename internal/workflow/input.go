package workflow

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
)

// WarnApprovalReset is reported when a change invalidates an approval.
const WarnApprovalReset = "Meeting changed after approval, please review it again"

var (
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:\d{2})`)
	negationPattern  = regexp.MustCompile(`(?i)\b(?:not|no|never|nope|don['’]?t|do not|won['’]?t|can['’]?t|cannot|isn['’]?t)\b`)
)

// typeLookback is how many earlier user turns meeting type selection reads
// when the latest message names no type.
const typeLookback = 3

// input is the meeting data carried by one operation. Step-specific
// choices are consumed by the first handler that acts on them.
type input struct {
	text        string
	meetingType model.MeetingType
	changeType  bool
	start       *time.Time
	end         *time.Time
	duration    time.Duration
	emails      []string
	title       string
	location    string
	description string

	selectedSlot  *int
	keepOriginal  bool
	action        model.Action
	reviewDetails bool
}

func (in *input) takeAction() model.Action {
	a := in.action
	in.action = ""
	return a
}

func (in *input) hasMeetingData() bool {
	return in.meetingType != "" || in.start != nil || len(in.emails) > 0 || in.title != ""
}

// ParseTimestamps returns the RFC 3339 timestamps in text, in order.
func ParseTimestamps(text string) []time.Time {
	var out []time.Time
	for _, match := range timestampPattern.FindAllString(text, -1) {
		t, err := time.Parse(time.RFC3339, match)
		if err == nil {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) parseInput(ctx context.Context, text string, md *model.MessageMetadata) *input {
	in := &input{text: text}
	if md != nil {
		in.meetingType = md.MeetingType
		in.changeType = md.ChangeMeetingType
		in.start = md.StartTime
		in.end = md.EndTime
		in.duration = time.Duration(md.DurationMinutes) * time.Minute
		in.emails = append(in.emails, md.Attendees...)
		in.title = strings.TrimSpace(md.Title)
		in.location = strings.TrimSpace(md.Location)
		in.description = strings.TrimSpace(md.Description)
		in.selectedSlot = md.SelectedSlot
		in.keepOriginal = md.KeepOriginalTime
		in.action = md.Action
	}
	if text == "" {
		return in
	}

	in.emails = append(in.emails, conversation.ExtractEmails(text)...)
	if in.start == nil && in.end == nil {
		times := ParseTimestamps(text)
		if len(times) > 0 {
			in.start = &times[0]
		}
		if len(times) > 1 {
			in.end = &times[1]
		}
	}

	step := o.state.CurrentStep
	if in.meetingType == "" && !o.state.MeetingTypeLocked && step.Index() <= model.StepMeetingTypeSelection.Index() {
		in.meetingType = o.classifyMeetingType(ctx, text)
	}
	if in.action == "" && (step == model.StepAgendaApproval || step == model.StepApproval) && !asksOrDeclines(text) {
		mode, err := o.conv.Classifier().ClassifyMode(ctx, model.ModeScheduling, text)
		if err != nil {
			o.log.Warn("confirmation classification failed", zap.Error(err))
		}
		if mode == model.ModeApproval {
			in.action = model.ActionApprove
		}
	}
	return in
}

// asksOrDeclines reports whether text is a question or negated, in which
// case a confirmation phrase in it approves nothing.
func asksOrDeclines(text string) bool {
	return strings.HasSuffix(strings.TrimSpace(text), "?") || negationPattern.MatchString(text)
}

// classifyMeetingType reads the meeting type from text. At meeting type
// selection a neutral reply falls back to the latest earlier user turn that
// names a type.
func (o *Orchestrator) classifyMeetingType(ctx context.Context, text string) model.MeetingType {
	turns := []string{text}
	if o.state.CurrentStep == model.StepMeetingTypeSelection {
		turns = append(turns, o.earlierUserTurns(text, typeLookback)...)
	}
	for _, t := range turns {
		mt, err := o.conv.Classifier().ClassifyMeetingType(ctx, t)
		if err != nil {
			o.log.Warn("meeting type classification failed", zap.Error(err))
			continue
		}
		if mt != "" {
			return mt
		}
	}
	return ""
}

// earlierUserTurns returns up to n user messages before the current one,
// newest first.
func (o *Orchestrator) earlierUserTurns(current string, n int) []string {
	messages := o.conv.Messages()
	if k := len(messages); k > 0 && messages[k-1].Role == model.RoleUser && messages[k-1].Content == current {
		messages = messages[:k-1]
	}
	var out []string
	for i := len(messages) - 1; i >= 0 && len(out) < n; i-- {
		if messages[i].Role == model.RoleUser && messages[i].Content != "" {
			out = append(out, messages[i].Content)
		}
	}
	return out
}

// apply folds in into s. Edits to data whose collection step has already
// finished reopen that step, and any edit after approval resets the meeting
// to draft.
func (o *Orchestrator) apply(s *model.WorkflowState, in *input) []string {
	m := &s.MeetingData
	if s.CurrentStep == model.StepCompleted || m.Status == model.MeetingStatusCreated {
		return nil
	}

	var warnings []string
	changed := false

	if in.meetingType != "" && in.meetingType != m.Type {
		switch {
		case !in.meetingType.Valid():
			warnings = append(warnings, transition.ErrMeetingTypeInvalid)
		case !s.MeetingTypeLocked:
			m.Type = in.meetingType
			changed = true
		case in.changeType && s.CurrentStep.Index() < model.StepValidation.Index():
			m.Type = in.meetingType
			s.AttendeeCollectionComplete = false
			changed = true
			warnings = append(warnings, fmt.Sprintf("Meeting type changed to %s", m.Type))
		default:
			warnings = append(warnings, fmt.Sprintf("Meeting type is locked as %s", m.Type))
		}
	}

	if applyTimes(m, in) {
		changed = true
		if s.TimeCollectionComplete {
			s.TimeCollectionComplete = false
		}
		s.AvailabilityResult = nil
	}

	added := false
	for _, email := range in.emails {
		if m.AddAttendee(email) {
			added = true
		}
	}
	if added {
		changed = true
		s.AttendeeCollectionComplete = false
	}

	for _, f := range []struct {
		dst *string
		src string
	}{{&m.Title, in.title}, {&m.Location, in.location}, {&m.Description, in.description}} {
		if f.src != "" && f.src != *f.dst {
			*f.dst = f.src
			changed = true
		}
	}

	if changed && (m.Status == model.MeetingStatusPendingApproval || m.Status == model.MeetingStatusApproved) {
		m.Status = model.MeetingStatusDraft
		warnings = append(warnings, WarnApprovalReset)
	}
	if changed {
		s.UpdatedAt = o.now()
	}
	return warnings
}

// applyTimes merges new start, end or duration into m and reports whether
// the slot changed. A new start without an end keeps the previous duration.
func applyTimes(m *model.Meeting, in *input) bool {
	if in.start == nil && in.end == nil && in.duration <= 0 {
		return false
	}

	start := m.StartTime
	if in.start != nil {
		t := *in.start
		start = &t
	}
	end := m.EndTime
	switch {
	case in.end != nil:
		t := *in.end
		end = &t
	case start != nil && in.duration > 0:
		t := start.Add(in.duration)
		end = &t
	case in.start != nil && m.HasTimes() && m.Duration() > 0:
		t := start.Add(m.Duration())
		end = &t
	}

	if sameTime(m.StartTime, start) && sameTime(m.EndTime, end) {
		return false
	}
	m.StartTime, m.EndTime = start, end
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// reconcile moves the workflow back when the current step's requirements no
// longer hold, to the step that restores them or, failing an edge there, to
// details collection.
func (o *Orchestrator) reconcile(ctx context.Context) {
	current := o.state.CurrentStep
	if current == model.StepCompleted {
		return
	}
	r := o.deps.Validator.ValidateStep(current, o.state)
	if r.IsValid || r.Redirect == "" || r.Redirect == current {
		return
	}

	target := r.Redirect
	if !transition.AllowedEdge(current, target) {
		target = model.StepMeetingDetailsCollection
	}
	if target != current && transition.AllowedEdge(current, target) {
		o.transition(ctx, current, target, "data changed")
	}
}
