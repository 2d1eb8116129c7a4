// Package workflow drives a meeting from the first message to a created
// calendar event. One Orchestrator owns one session's state; callers must
// serialize operations on it.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

var tracer = otel.Tracer("github.com/capitalize-ai/meeting-assistant/internal/workflow")

const (
	maxValidationRecords = 50
	maxStateErrors       = 100
)

// Options tunes the orchestrator.
type Options struct {
	// CollaboratorTimeout bounds every external call.
	CollaboratorTimeout time.Duration
	// DefaultDuration is used when only a start time is given.
	DefaultDuration time.Duration
	// AvailabilityCheck enables the conflict lookup after time collection.
	AvailabilityCheck bool
	// MaxAlternatives is how many free slots to offer on a conflict.
	MaxAlternatives int
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		CollaboratorTimeout: 10 * time.Second,
		DefaultDuration:     30 * time.Minute,
		AvailabilityCheck:   true,
		MaxAlternatives:     3,
	}
}

// Dependencies are the collaborators an orchestrator works with. Publisher
// and Persister are optional.
type Dependencies struct {
	Access       CalendarAccessVerifier
	Availability CalendarAvailability
	Attendees    AttendeeValidator
	Agenda       AgendaGenerator
	Events       EventCreator
	Publisher    EventPublisher
	Persister    Persister
	Validator    *transition.Validator
	Options      Options
	Now          func() time.Time
	Log          *logger.Logger
}

// Orchestrator runs the step handlers of one session.
type Orchestrator struct {
	deps  Dependencies
	opts  Options
	now   func() time.Time
	log   *logger.Logger
	user  model.User
	state *model.WorkflowState
	conv  *conversation.Context

	mu         sync.Mutex
	background []model.StateError
}

// New creates an orchestrator for state and its conversation.
func New(deps Dependencies, user model.User, state *model.WorkflowState, conv *conversation.Context) *Orchestrator {
	if deps.Validator == nil {
		deps.Validator = transition.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	opts := deps.Options
	d := DefaultOptions()
	if opts.CollaboratorTimeout <= 0 {
		opts.CollaboratorTimeout = d.CollaboratorTimeout
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = d.DefaultDuration
	}
	if opts.MaxAlternatives <= 0 {
		opts.MaxAlternatives = d.MaxAlternatives
	}

	return &Orchestrator{
		deps:  deps,
		opts:  opts,
		now:   deps.Now,
		log:   deps.Log.WithSession(state.SessionID, state.UserID),
		user:  user,
		state: state,
		conv:  conv,
	}
}

// ProcessMessage records a user message, folds its data into the meeting
// and runs step handlers until one needs the user. It never fails: errors
// become a recovery response and an entry in the state's error list.
func (o *Orchestrator) ProcessMessage(ctx context.Context, content string, md *model.MessageMetadata) (resp Response) {
	ctx, span := o.startSpan(ctx, "workflow.ProcessMessage")
	defer span.End()
	o.drainBackground()
	defer o.persist()
	defer o.recoverPanic(span, &resp)

	if _, err := o.conv.AddMessage(model.ConversationMessage{Role: model.RoleUser, Content: content, Metadata: md}); err != nil {
		o.log.Error("failed to record message", zap.Error(err))
	}

	in := o.parseInput(ctx, content, md)
	warnings := o.apply(o.state, in)
	o.reconcile(ctx)
	resp = o.run(ctx, in, warnings)

	if resp.Message != "" {
		if _, err := o.conv.AddMessage(model.ConversationMessage{Role: model.RoleAssistant, Content: resp.Message}); err != nil {
			o.log.Error("failed to record reply", zap.Error(err))
		}
	}
	o.conv.SetMeetingData(o.state.MeetingData)

	span.SetAttributes(attribute.String("next_step", string(resp.NextStep)))
	return resp
}

// AdvanceToStep asks to move the workflow to target, optionally with new
// meeting data. The current step must be satisfied and target's rules must
// hold; otherwise the response names the step to return to and data is
// discarded.
func (o *Orchestrator) AdvanceToStep(ctx context.Context, target model.Step, data *model.MessageMetadata) (resp Response) {
	ctx, span := o.startSpan(ctx, "workflow.AdvanceToStep", attribute.String("target", string(target)))
	defer span.End()
	o.drainBackground()
	defer o.persist()
	defer o.recoverPanic(span, &resp)

	if !target.Valid() {
		msg := fmt.Sprintf("Unknown step %q", target)
		return o.finish(Response{Message: msg, ValidationErrors: []string{msg}, RequiresUserInput: true}, nil)
	}

	in := &input{}
	trial := o.state
	var warnings []string
	if data != nil {
		in = o.parseInput(ctx, "", data)
		trial = o.state.Clone()
		warnings = o.apply(trial, in)
	}

	current := o.state.CurrentStep
	if pre := o.deps.Validator.ValidateStep(current, trial); !pre.IsValid {
		return o.finish(Response{
			Message:           pre.Errors[0],
			ValidationErrors:  pre.Errors,
			NextStep:          pre.Redirect,
			RequiresUserInput: true,
		}, nil)
	}
	if target == current {
		o.commit(trial)
		return o.run(ctx, in, warnings)
	}

	r := o.deps.Validator.ValidateStep(target, trial)
	if !r.IsValid {
		o.reject(ctx, current, target, r)
		if r.Redirect != current && transition.IsRecovery(current, r.Redirect) {
			o.transition(ctx, current, r.Redirect, "redirect")
		}
		return o.finish(Response{
			Message:           r.Errors[0],
			ValidationErrors:  r.Errors,
			Warnings:          r.Warnings,
			NextStep:          r.Redirect,
			RequiresUserInput: true,
		}, nil)
	}
	if !transition.AllowedEdge(current, target) {
		tr := o.deps.Validator.ValidateTransition(current, target, trial)
		o.reject(ctx, current, target, tr)
		return o.finish(Response{
			Message:           tr.Errors[0],
			ValidationErrors:  tr.Errors,
			NextStep:          current,
			RequiresUserInput: true,
		}, nil)
	}

	o.commit(trial)
	tr := o.transition(ctx, current, target, "advance")
	warnings = append(warnings, tr.Warnings...)
	if !tr.IsValid {
		return o.finish(Response{
			Message:           tr.Errors[0],
			ValidationErrors:  tr.Errors,
			NextStep:          current,
			RequiresUserInput: true,
		}, warnings)
	}
	return o.run(ctx, in, warnings)
}

// recoverPanic turns a panic in a step handler or collaborator into the
// generic retry response and a recorded error. It must be deferred.
func (o *Orchestrator) recoverPanic(span trace.Span, resp *Response) {
	p := recover()
	if p == nil {
		return
	}
	msg := fmt.Sprintf("internal error: %v", p)
	o.log.Error("workflow panic", zap.Any("panic", p), zap.Stack("stack"))
	span.SetStatus(codes.Error, msg)
	o.recordError(KindUnknown, msg, false)
	*resp = o.finish(prompt(MsgTryAgain, nil).resp, nil)
}

// commit makes trial the session state.
func (o *Orchestrator) commit(trial *model.WorkflowState) {
	if trial != o.state {
		*o.state = *trial
	}
}

// ProcessStepTransition applies the single edge from -> to. from must be the
// current step. The current step changes exactly when the transition
// validator accepts the edge; no step handler runs.
func (o *Orchestrator) ProcessStepTransition(ctx context.Context, from, to model.Step) (resp Response) {
	ctx, span := o.startSpan(ctx, "workflow.ProcessStepTransition",
		attribute.String("from", string(from)), attribute.String("to", string(to)))
	defer span.End()
	o.drainBackground()
	defer o.persist()
	defer o.recoverPanic(span, &resp)

	current := o.state.CurrentStep
	if from != current {
		msg := fmt.Sprintf("%s: workflow is at %s", transition.InvalidTransitionMessage(from, to), current)
		metrics.RecordTransition(string(from), string(to), false)
		return o.finish(Response{Message: msg, ValidationErrors: []string{msg}, RequiresUserInput: true}, nil)
	}

	r := o.transition(ctx, from, to, "requested")
	if !r.IsValid {
		return o.finish(Response{
			Message:           r.Errors[0],
			ValidationErrors:  r.Errors,
			Warnings:          r.Warnings,
			NextStep:          r.Redirect,
			RequiresUserInput: true,
		}, nil)
	}
	return o.finish(Response{
		Message:           fmt.Sprintf("Moved to %s", to),
		Warnings:          r.Warnings,
		RequiresUserInput: to != model.StepCompleted,
	}, nil)
}

// GetWorkflowState returns a copy of the session state.
func (o *Orchestrator) GetWorkflowState() *model.WorkflowState {
	o.drainBackground()
	return o.state.Clone()
}

// CompressedContext returns the bounded view of the conversation.
func (o *Orchestrator) CompressedContext() conversation.CompressedContext {
	return o.conv.GetCompressedContext()
}

// ReportBackgroundError records a failure from work that finished after
// its request, such as a queued save. It is safe to call from any
// goroutine; the error reaches the state on the next operation.
func (o *Orchestrator) ReportBackgroundError(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	o.background = append(o.background, model.StateError{
		Kind:       string(KindOf(err)),
		Message:    err.Error(),
		Background: true,
		At:         o.now(),
	})
	o.mu.Unlock()
}

func (o *Orchestrator) drainBackground() {
	o.mu.Lock()
	pending := o.background
	o.background = nil
	o.mu.Unlock()

	for _, e := range pending {
		if e.Step == "" {
			e.Step = o.state.CurrentStep
		}
		o.appendError(e)
	}
}

// run executes the handler of the current step and follows the automatic
// transitions it asks for. Each step runs at most once per call.
func (o *Orchestrator) run(ctx context.Context, in *input, warnings []string) Response {
	for i := 0; i < len(model.Steps); i++ {
		from := o.state.CurrentStep
		out := o.handle(ctx, from, in)
		warnings = append(warnings, out.resp.Warnings...)
		if out.next == "" || out.next == from {
			return o.finish(out.resp, warnings)
		}

		r := o.transition(ctx, from, out.next, "automatic")
		warnings = append(warnings, r.Warnings...)
		if !r.IsValid {
			resp := out.resp
			resp.Message = r.Errors[0]
			resp.ValidationErrors = append(resp.ValidationErrors, r.Errors...)
			resp.NextStep = r.Redirect
			resp.RequiresUserInput = true
			return o.finish(resp, warnings)
		}
	}

	o.log.Error("step handlers did not settle", zap.String("step", string(o.state.CurrentStep)))
	return o.finish(Response{Message: "Please continue.", RequiresUserInput: true}, warnings)
}

func (o *Orchestrator) handle(ctx context.Context, step model.Step, in *input) outcome {
	ctx, span := tracer.Start(ctx, "workflow.step."+string(step))
	defer span.End()

	switch step {
	case model.StepIntentDetection:
		return o.handleIntent(ctx, in)
	case model.StepCalendarAccessVerification:
		return o.handleCalendarAccess(ctx)
	case model.StepMeetingTypeSelection:
		return o.handleMeetingType()
	case model.StepTimeDateCollection:
		return o.handleTime()
	case model.StepAvailabilityCheck:
		return o.handleAvailability(ctx)
	case model.StepConflictResolution:
		return o.handleConflict(in)
	case model.StepAttendeeCollection:
		return o.handleAttendees(ctx)
	case model.StepMeetingDetailsCollection:
		return o.handleDetails(ctx, in)
	case model.StepValidation:
		return o.handleValidation(ctx)
	case model.StepAgendaGeneration:
		return o.handleAgendaGeneration(ctx)
	case model.StepAgendaApproval:
		return o.handleAgendaApproval(in)
	case model.StepApproval:
		return o.handleApproval(in)
	case model.StepCreation:
		return o.handleCreation(ctx)
	default:
		return o.handleCompleted()
	}
}

// transition validates and applies from -> to.
func (o *Orchestrator) transition(ctx context.Context, from, to model.Step, reason string) transition.Result {
	r := o.deps.Validator.ValidateTransition(from, to, o.state)
	if !r.IsValid {
		o.reject(ctx, from, to, r)
		return r
	}

	o.record(to, r)
	metrics.RecordTransition(string(from), string(to), true)
	o.state.CurrentStep = to
	o.state.UpdatedAt = o.now()
	if to == model.StepCompleted {
		o.state.IsComplete = true
	}
	if to.Index() > model.StepMeetingTypeSelection.Index() && o.state.MeetingData.Type.Valid() {
		o.state.MeetingTypeLocked = true
	}

	o.log.Debug("step transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	o.publish(ctx, model.EventTypeStepTransition, from, to, reason, nil)
	return r
}

func (o *Orchestrator) reject(ctx context.Context, from, to model.Step, r transition.Result) {
	o.record(to, r)
	metrics.RecordTransition(string(from), string(to), false)
	o.log.Info("transition rejected",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Strings("errors", r.Errors),
	)
	o.publish(ctx, model.EventTypeTransitionRejected, from, to, r.Errors[0], nil)
}

func (o *Orchestrator) record(step model.Step, r transition.Result) {
	o.state.ValidationResults = append(o.state.ValidationResults, model.ValidationRecord{
		Step:     step,
		IsValid:  r.IsValid,
		Errors:   r.Errors,
		Warnings: r.Warnings,
		At:       o.now(),
	})
	if n := len(o.state.ValidationResults); n > maxValidationRecords {
		o.state.ValidationResults = o.state.ValidationResults[n-maxValidationRecords:]
	}
}

func (o *Orchestrator) appendError(e model.StateError) {
	metrics.WorkflowErrorsTotal.WithLabelValues(e.Kind, string(e.Step)).Inc()
	o.state.Errors = append(o.state.Errors, e)
	if n := len(o.state.Errors); n > maxStateErrors {
		o.state.Errors = o.state.Errors[n-maxStateErrors:]
	}
}

func (o *Orchestrator) recordError(kind Kind, message string, background bool) {
	o.appendError(model.StateError{
		Kind:       string(kind),
		Step:       o.state.CurrentStep,
		Message:    message,
		Background: background,
		At:         o.now(),
	})
}

func (o *Orchestrator) publish(ctx context.Context, typ model.EventType, from, to model.Step, reason string, md map[string]any) {
	if o.deps.Publisher == nil {
		return
	}
	event := model.WorkflowEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: o.state.SessionID,
		UserID:    o.state.UserID,
		Type:      typ,
		FromStep:  from,
		Step:      to,
		Reason:    reason,
		Metadata:  md,
		CreatedAt: o.now(),
	}
	_, err := callCollaborator(ctx, o, "events.publish", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.deps.Publisher.Publish(ctx, event)
	})
	if err != nil {
		o.log.Warn("failed to publish workflow event", zap.String("type", string(typ)), zap.Error(err))
		o.recordError(KindOf(err), err.Error(), true)
	}
}

// Snapshot returns the stored form of the session.
func (o *Orchestrator) Snapshot() (model.PersistedState, error) {
	meeting, err := json.Marshal(o.state.MeetingData)
	if err != nil {
		return model.PersistedState{}, fmt.Errorf("marshal meeting: %w", err)
	}
	state, err := json.Marshal(o.state)
	if err != nil {
		return model.PersistedState{}, fmt.Errorf("marshal state: %w", err)
	}
	messages, err := json.Marshal(o.conv.Messages())
	if err != nil {
		return model.PersistedState{}, fmt.Errorf("marshal messages: %w", err)
	}

	return model.PersistedState{
		ID:               o.state.SessionID,
		UserID:           o.state.UserID,
		CurrentMode:      o.conv.Mode(),
		CurrentStep:      o.state.CurrentStep,
		MeetingData:      meeting,
		CompressionLevel: o.conv.CompressionLevel(),
		State:            state,
		Messages:         messages,
		CreatedAt:        o.state.CreatedAt,
		UpdatedAt:        o.state.UpdatedAt,
	}, nil
}

// DecodeSnapshot rebuilds the state and transcript stored by Snapshot.
func DecodeSnapshot(p model.PersistedState) (*model.WorkflowState, []model.ConversationMessage, error) {
	var state model.WorkflowState
	if err := json.Unmarshal(p.State, &state); err != nil {
		return nil, nil, fmt.Errorf("unmarshal state: %w", err)
	}
	var messages []model.ConversationMessage
	if len(p.Messages) > 0 {
		if err := json.Unmarshal(p.Messages, &messages); err != nil {
			return nil, nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	return &state, messages, nil
}

// persist queues a snapshot without waiting for it to be written.
func (o *Orchestrator) persist() {
	if o.deps.Persister == nil {
		return
	}
	snap, err := o.Snapshot()
	if err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("encode").Inc()
		o.log.Error("failed to encode session", zap.Error(err))
		o.recordError(KindUnknown, err.Error(), true)
		return
	}
	if !o.deps.Persister.Enqueue(snap) {
		metrics.PersistenceFailuresTotal.WithLabelValues("queue_full").Inc()
		o.log.Error("persistence queue full, snapshot dropped")
		o.recordError(KindUnknown, "persistence queue full", true)
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("session_id", o.state.SessionID),
		attribute.String("step", string(o.state.CurrentStep)),
	)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// callCollaborator runs fn under the per-call timeout, with a span and a
// latency metric. Returned errors are always tagged.
func callCollaborator[T any](ctx context.Context, o *Orchestrator, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.CollaboratorTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "collaborator."+name)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	metrics.RecordCollaboratorCall(name, err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return v, tag(name, err)
	}
	return v, nil
}
