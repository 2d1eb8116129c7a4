package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/agenda"
	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// WarnTemplateAgenda is reported when the agenda generator failed.
const WarnTemplateAgenda = "Agenda generated from the standard template"

const introMessage = "I can help you schedule a meeting. Tell me who should attend, when it should happen, and whether it is online or in person."

func (o *Orchestrator) handleIntent(ctx context.Context, in *input) outcome {
	mt, err := o.conv.DetectModeTransition(ctx)
	if err != nil {
		o.log.Warn("mode detection failed", zap.Error(err))
	}

	scheduling := o.conv.Mode() != model.ModeCasual ||
		(mt.Detected && mt.To == model.ModeScheduling) ||
		in.hasMeetingData()
	if !scheduling {
		return prompt(introMessage, nil)
	}
	if o.conv.Mode() == model.ModeCasual {
		o.conv.SetMode(model.ModeScheduling)
	}
	return advance(model.StepCalendarAccessVerification)
}

func (o *Orchestrator) handleCalendarAccess(ctx context.Context) outcome {
	verify := func(ctx context.Context) (model.CalendarAccessStatus, error) {
		return o.deps.Access.VerifyAccess(ctx, o.user)
	}

	status, err := callCollaborator(ctx, o, "calendar.verify_access", verify)
	if err != nil {
		return o.recover(ctx, err)
	}
	if !status.HasAccess && status.NeedsRefresh {
		refresh, err := callCollaborator(ctx, o, "calendar.refresh_token", func(ctx context.Context) (RefreshResult, error) {
			return o.deps.Access.RefreshAccessToken(ctx, o.user)
		})
		if err != nil {
			return o.recover(ctx, err)
		}
		if refresh.Success {
			if status, err = callCollaborator(ctx, o, "calendar.verify_access", verify); err != nil {
				return o.recover(ctx, err)
			}
		}
	}

	status.CheckedAt = o.now()
	o.state.CalendarAccessStatus = &status
	if !status.HasAccess {
		msg := status.Error
		if msg == "" {
			msg = "calendar access was not granted"
		}
		return o.recover(ctx, NewError(KindAuthentication, "calendar.verify_access", msg))
	}
	return advance(model.StepMeetingTypeSelection)
}

func (o *Orchestrator) handleMeetingType() outcome {
	if o.state.MeetingData.Type.Valid() {
		o.state.MeetingTypeLocked = true
		return advance(model.StepTimeDateCollection)
	}
	return prompt("Should this be an online meeting or an in-person meeting?",
		ui(UIMeetingType, map[string]any{
			"options": []model.MeetingType{model.MeetingTypeOnline, model.MeetingTypePhysical},
		}))
}

func (o *Orchestrator) handleTime() outcome {
	m := &o.state.MeetingData
	if m.StartTime != nil && m.EndTime == nil {
		end := m.StartTime.Add(o.opts.DefaultDuration)
		m.EndTime = &end
	}

	picker := ui(UITimePicker, map[string]any{
		"default_duration_minutes": int(o.opts.DefaultDuration.Minutes()),
	})
	if !m.HasTimes() {
		return prompt("When should the meeting start, and how long should it be?", picker)
	}
	if m.Duration() <= 0 {
		out := prompt(transition.ErrTimeOrder+". Please choose a new time.", picker)
		out.resp.ValidationErrors = []string{transition.ErrTimeOrder}
		return out
	}

	o.state.TimeCollectionComplete = true
	if o.opts.AvailabilityCheck && o.deps.Availability != nil {
		return advance(model.StepAvailabilityCheck)
	}
	return advance(o.afterTimeStep())
}

// afterTimeStep is where a meeting goes once its slot is settled.
func (o *Orchestrator) afterTimeStep() model.Step {
	if o.state.MeetingData.Type == model.MeetingTypePhysical {
		return model.StepMeetingDetailsCollection
	}
	return model.StepAttendeeCollection
}

func (o *Orchestrator) handleAvailability(ctx context.Context) outcome {
	m := &o.state.MeetingData
	start, end := *m.StartTime, *m.EndTime

	res, err := callCollaborator(ctx, o, "calendar.check_conflicts", func(ctx context.Context) (ConflictResult, error) {
		return o.deps.Availability.CheckConflicts(ctx, o.user, start, end)
	})
	if err != nil {
		return o.recover(ctx, err)
	}

	result := &model.AvailabilityResult{
		HasConflicts:      res.HasConflicts || len(res.ConflictingEvents) > 0,
		ConflictingEvents: res.ConflictingEvents,
		TotalConflicts:    max(res.TotalConflicts, len(res.ConflictingEvents)),
		CheckedAt:         o.now(),
	}
	if !result.HasConflicts {
		o.state.AvailabilityResult = result
		return advance(o.afterTimeStep())
	}

	var warnings []string
	alts, err := callCollaborator(ctx, o, "calendar.suggest_alternatives", func(ctx context.Context) ([]model.TimeSlot, error) {
		return o.deps.Availability.SuggestAlternatives(ctx, o.user, start, int(end.Sub(start).Minutes()), o.opts.MaxAlternatives)
	})
	if err != nil {
		o.log.Warn("failed to suggest alternatives", zap.Error(err))
		warnings = append(warnings, "Alternative times are unavailable right now")
	}
	result.Alternatives = alts
	o.state.AvailabilityResult = result
	return advance(model.StepConflictResolution, warnings...)
}

func (o *Orchestrator) handleConflict(in *input) outcome {
	ar := o.state.AvailabilityResult
	if ar == nil {
		return advance(model.StepAvailabilityCheck)
	}

	if in.selectedSlot != nil {
		i := *in.selectedSlot
		in.selectedSlot = nil
		if i < 0 || i >= len(ar.Alternatives) {
			msg := fmt.Sprintf("Selected slot %d is not one of the %d suggested times", i, len(ar.Alternatives))
			out := prompt(msg, o.conflictUI(ar))
			out.resp.ValidationErrors = []string{msg}
			return out
		}
		slot := ar.Alternatives[i]
		start, end := slot.Start, slot.End
		o.state.MeetingData.StartTime, o.state.MeetingData.EndTime = &start, &end
		o.state.AvailabilityResult = nil
		return advance(model.StepAvailabilityCheck)
	}

	if in.keepOriginal {
		in.keepOriginal = false
		ar.Acknowledged = true
		return advance(o.afterTimeStep(), transition.WarnUnresolvedConflicts)
	}

	msg := fmt.Sprintf("That time overlaps %d existing event(s). Pick one of the suggested times or keep the original time.", ar.TotalConflicts)
	return prompt(msg, o.conflictUI(ar))
}

func (o *Orchestrator) conflictUI(ar *model.AvailabilityResult) *UIDirective {
	return ui(UIConflictResolver, map[string]any{
		"conflicts":    ar.ConflictingEvents,
		"alternatives": ar.Alternatives,
	})
}

func (o *Orchestrator) handleAttendees(ctx context.Context) outcome {
	m := &o.state.MeetingData
	if len(m.Attendees) == 0 {
		if m.Type == model.MeetingTypePhysical {
			return advance(model.StepMeetingDetailsCollection)
		}
		return prompt("Who should attend? Share their email addresses.", ui(UIAttendeePicker, nil))
	}

	invalid, err := o.validateAttendees(ctx)
	if err != nil {
		return o.recover(ctx, err)
	}
	if len(invalid) > 0 {
		return invalidAttendees(invalid, ui(UIAttendeePicker, map[string]any{"attendees": m.Attendees}))
	}
	if len(m.Attendees) == 0 {
		return prompt("Who should attend? Share their email addresses.", ui(UIAttendeePicker, nil))
	}

	o.state.AttendeeCollectionComplete = true
	return advance(model.StepMeetingDetailsCollection)
}

// validateAttendees checks every unvalidated attendee in one batch, drops
// the ones that fail and returns their addresses.
func (o *Orchestrator) validateAttendees(ctx context.Context) ([]string, error) {
	m := &o.state.MeetingData
	var pending []string
	for _, a := range m.Attendees {
		if !a.IsValidated {
			pending = append(pending, a.Email)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results, err := callCollaborator(ctx, o, "attendees.validate_batch", func(ctx context.Context) ([]attendee.Result, error) {
		return o.deps.Attendees.ValidateBatch(ctx, pending, o.user)
	})
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]attendee.Result, len(results))
	for _, r := range results {
		byEmail[model.NormalizeEmail(r.Email)] = r
	}

	var invalid []string
	kept := make([]model.Attendee, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		if a.IsValidated {
			kept = append(kept, a)
			continue
		}
		r, ok := byEmail[model.NormalizeEmail(a.Email)]
		if !ok || !r.IsValid {
			invalid = append(invalid, a.Email)
			continue
		}
		a.IsValidated = true
		if a.FirstName == "" {
			a.FirstName = r.FirstName
		}
		if a.LastName == "" {
			a.LastName = r.LastName
		}
		kept = append(kept, a)
	}
	m.Attendees = kept
	return invalid, nil
}

func invalidAttendees(invalid []string, directive *UIDirective) outcome {
	errs := make([]string, len(invalid))
	for i, e := range invalid {
		errs[i] = fmt.Sprintf("Could not validate attendee %s", e)
	}
	out := prompt(fmt.Sprintf("These attendees could not be validated and were removed: %s. Add replacements or continue.",
		strings.Join(invalid, ", ")), directive)
	out.resp.ValidationErrors = errs
	return out
}

func (o *Orchestrator) handleDetails(ctx context.Context, in *input) outcome {
	m := &o.state.MeetingData
	o.conv.SetMode(model.ModeScheduling)

	if m.Type == model.MeetingTypePhysical && len(m.Attendees) > 0 {
		invalid, err := o.validateAttendees(ctx)
		if err != nil {
			return o.recover(ctx, err)
		}
		if len(invalid) > 0 {
			return invalidAttendees(invalid, ui(UIDetailsForm, map[string]any{"attendees": m.Attendees}))
		}
	}

	var missing []string
	if m.Title == "" {
		missing = append(missing, "title")
	}
	if m.Type == model.MeetingTypePhysical && m.Location == "" {
		missing = append(missing, "location")
	}
	form := ui(UIDetailsForm, map[string]any{"missing": missing})

	if in.reviewDetails {
		in.reviewDetails = false
		return prompt("What would you like to change?", form)
	}
	switch len(missing) {
	case 0:
		return advance(model.StepValidation)
	case 2:
		return prompt("What should the meeting be called, and where will it take place?", form)
	}
	if missing[0] == "title" {
		return prompt("What should the meeting be called?", form)
	}
	return prompt("Where will the meeting take place?", form)
}

func (o *Orchestrator) handleValidation(ctx context.Context) outcome {
	r := o.deps.Validator.ValidateStep(model.StepValidation, o.state)
	if !r.IsValid {
		return o.recover(ctx, &Error{
			Kind:     KindValidation,
			Op:       "validation",
			Message:  strings.Join(r.Errors, "; "),
			Step:     r.Redirect,
			Problems: r.Errors,
		})
	}
	return advance(model.StepAgendaGeneration, r.Warnings...)
}

func (o *Orchestrator) handleAgendaGeneration(ctx context.Context) outcome {
	m := &o.state.MeetingData
	if m.Agenda != nil {
		return advance(model.StepAgendaApproval)
	}

	if o.deps.Agenda == nil {
		a := agenda.Template(*m)
		m.Agenda = &a
		return advance(model.StepAgendaApproval)
	}

	snapshot := m.Clone()
	messages := o.conv.Messages()
	a, err := callCollaborator(ctx, o, "agenda.generate", func(ctx context.Context) (model.Agenda, error) {
		return o.deps.Agenda.GenerateAgenda(ctx, snapshot, messages)
	})
	if err != nil {
		o.log.Warn("agenda generation failed, using template", zap.Error(err))
		o.recordError(KindOf(err), err.Error(), true)
		a = agenda.Template(*m)
		m.Agenda = &a
		return advance(model.StepAgendaApproval, WarnTemplateAgenda)
	}
	m.Agenda = &a
	return advance(model.StepAgendaApproval)
}

func (o *Orchestrator) formatAgenda(a model.Agenda) string {
	if o.deps.Agenda != nil {
		return o.deps.Agenda.FormatAgenda(a)
	}
	return agenda.FormatAgenda(a)
}

func (o *Orchestrator) handleAgendaApproval(in *input) outcome {
	m := &o.state.MeetingData
	o.conv.SetMode(model.ModeApproval)

	switch in.takeAction() {
	case model.ActionApprove:
		m.Status = model.MeetingStatusPendingApproval
		return advance(model.StepApproval)
	case model.ActionReject, model.ActionRegenerateAgenda:
		m.Agenda = nil
		return advance(model.StepAgendaGeneration)
	}

	text := o.formatAgenda(*m.Agenda)
	return prompt("Here is the proposed agenda. Approve it or ask for a new one.\n\n"+text,
		ui(UIAgendaReview, map[string]any{"agenda": m.Agenda, "formatted": text}))
}

func (o *Orchestrator) handleApproval(in *input) outcome {
	m := &o.state.MeetingData

	switch in.takeAction() {
	case model.ActionApprove:
		m.Status = model.MeetingStatusApproved
		return advance(model.StepCreation)
	case model.ActionReject:
		m.Status = model.MeetingStatusDraft
		in.reviewDetails = true
		return advance(model.StepMeetingDetailsCollection)
	}

	return prompt("Please confirm the meeting:\n"+summarize(m),
		ui(UIMeetingApproval, map[string]any{"meeting": m}))
}

func summarize(m *model.Meeting) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", m.Title)
	fmt.Fprintf(&b, "Type: %s\n", m.Type)
	if m.HasTimes() {
		fmt.Fprintf(&b, "When: %s to %s\n", m.StartTime.Format(time.RFC1123), m.EndTime.Format(time.Kitchen))
	}
	if m.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", m.Location)
	}
	if len(m.Attendees) > 0 {
		emails := make([]string, len(m.Attendees))
		for i, a := range m.Attendees {
			emails[i] = a.Email
		}
		fmt.Fprintf(&b, "Attendees: %s\n", strings.Join(emails, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Orchestrator) handleCreation(ctx context.Context) outcome {
	m := &o.state.MeetingData

	problems, warnings := o.validateMeetingCreationRequirements()
	if len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.message
		}
		return o.recover(ctx, &Error{
			Kind:     KindValidation,
			Op:       "creation",
			Message:  strings.Join(msgs, "; "),
			Step:     problems[0].step,
			Problems: msgs,
		})
	}

	req, err := o.eventRequest()
	if err != nil {
		return o.recover(ctx, err)
	}
	created, err := callCollaborator(ctx, o, "events.create", func(ctx context.Context) (CreatedEvent, error) {
		return o.deps.Events.Create(ctx, o.user, req, m.Type)
	})
	if err != nil {
		return o.recover(ctx, err)
	}

	m.EventID = created.ID
	m.MeetingLink = created.MeetingLink
	m.HTMLLink = created.HTMLLink
	m.Status = model.MeetingStatusCreated
	metrics.MeetingsCreatedTotal.WithLabelValues(string(m.Type)).Inc()
	o.log.Info("meeting created", zap.String("event_id", created.ID), zap.String("type", string(m.Type)))
	o.publish(ctx, model.EventTypeMeetingCreated, model.StepCreation, model.StepCompleted, "", map[string]any{
		"event_id":  created.ID,
		"html_link": created.HTMLLink,
	})
	return advance(model.StepCompleted, warnings...)
}

func (o *Orchestrator) handleCompleted() outcome {
	m := &o.state.MeetingData
	var b strings.Builder
	fmt.Fprintf(&b, "Your meeting %q is scheduled.", m.Title)
	if m.HTMLLink != "" {
		fmt.Fprintf(&b, "\nCalendar: %s", m.HTMLLink)
	}
	if m.MeetingLink != "" {
		fmt.Fprintf(&b, "\nJoin: %s", m.MeetingLink)
	}
	return outcome{resp: Response{
		Message: b.String(),
		UI: ui(UIMeetingCreated, map[string]any{
			"event_id":     m.EventID,
			"html_link":    m.HTMLLink,
			"meeting_link": m.MeetingLink,
		}),
	}}
}
