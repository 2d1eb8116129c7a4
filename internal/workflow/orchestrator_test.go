package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/meeting-assistant/internal/attendee"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/transition"
)

func TestProcessMessage_CasualChatStaysAtIntent(t *testing.T) {
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{})

	resp := o.ProcessMessage(context.Background(), "hello there", nil)

	assert.Equal(t, model.StepIntentDetection, resp.CurrentStep)
	assert.True(t, resp.RequiresUserInput)
	assert.Equal(t, introMessage, resp.Message)
	assert.Equal(t, 2, o.conv.Len())
}

func TestProcessMessage_SchedulingIntentReachesMeetingType(t *testing.T) {
	access := validAccess()
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{Access: access})

	resp := o.ProcessMessage(context.Background(), "Can you schedule a meeting with ana@example.com?", nil)

	assert.Equal(t, model.StepMeetingTypeSelection, resp.CurrentStep)
	require.NotNil(t, resp.UI)
	assert.Equal(t, UIMeetingType, resp.UI.Component)
	assert.Equal(t, model.ModeScheduling, o.conv.Mode())

	state := o.GetWorkflowState()
	require.NotNil(t, state.CalendarAccessStatus)
	assert.True(t, state.CalendarAccessStatus.HasAccess)
	assert.Equal(t, testNow, state.CalendarAccessStatus.CheckedAt)
	require.Len(t, state.MeetingData.Attendees, 1)
	assert.Equal(t, "ana@example.com", state.MeetingData.Attendees[0].Email)
	require.Len(t, state.PendingActions, 1)
	assert.Equal(t, UIMeetingType, state.PendingActions[0].Type)
	access.AssertExpectations(t)
}

func TestProcessMessage_RefreshesExpiredToken(t *testing.T) {
	access := &mockAccess{}
	access.On("VerifyAccess", mock.Anything, testUser).Return(model.CalendarAccessStatus{NeedsRefresh: true}, nil).Once()
	access.On("RefreshAccessToken", mock.Anything, testUser).Return(RefreshResult{Success: true}, nil).Once()
	access.On("VerifyAccess", mock.Anything, testUser).Return(model.CalendarAccessStatus{HasAccess: true}, nil).Once()
	o := newOrchestrator(readyState(model.StepCalendarAccessVerification), Dependencies{Access: access})
	o.state.CalendarAccessStatus = nil

	resp := o.ProcessMessage(context.Background(), "", nil)

	assert.Equal(t, model.StepTimeDateCollection, resp.CurrentStep)
	access.AssertExpectations(t)
}

func TestProcessMessage_RecoveryByKind(t *testing.T) {
	tests := []struct {
		name       string
		status     model.CalendarAccessStatus
		err        error
		kind       Kind
		needsInput bool
		message    string
	}{
		{"quota", model.CalendarAccessStatus{}, NewError(KindQuotaExceeded, "", "rate limited"), KindQuotaExceeded, false, MsgServiceBusy},
		{"timeout", model.CalendarAccessStatus{}, fmt.Errorf("dial: %w", context.DeadlineExceeded), KindNetworkTimeout, false, MsgServiceBusy},
		{"unknown", model.CalendarAccessStatus{}, errors.New("boom"), KindUnknown, true, MsgTryAgain},
		{"denied", model.CalendarAccessStatus{Error: "permission not granted"}, nil, KindAuthentication, true, MsgReconnectCalendar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			access := &mockAccess{}
			access.On("VerifyAccess", mock.Anything, testUser).Return(tt.status, tt.err)
			o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{Access: access})

			resp := o.ProcessMessage(context.Background(), "please schedule a meeting", nil)

			assert.Equal(t, model.StepCalendarAccessVerification, resp.CurrentStep)
			assert.Equal(t, tt.needsInput, resp.RequiresUserInput)
			assert.Equal(t, tt.message, resp.Message)
			state := o.GetWorkflowState()
			require.NotEmpty(t, state.Errors)
			last := state.Errors[len(state.Errors)-1]
			assert.Equal(t, string(tt.kind), last.Kind)
			assert.Equal(t, model.StepCalendarAccessVerification, last.Step)
			assert.False(t, last.Background)
		})
	}
}

func TestProcessMessage_AuthenticationFailureReturnsToCalendarAccess(t *testing.T) {
	avail := &mockAvailability{}
	avail.On("CheckConflicts", mock.Anything, testUser, slotStart, slotEnd).
		Return(ConflictResult{}, NewError(KindAuthentication, "", "token revoked"))
	state := readyState(model.StepTimeDateCollection)
	o := newOrchestrator(state, Dependencies{Availability: avail})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{StartTime: &slotStart, EndTime: &slotEnd})

	assert.Equal(t, model.StepCalendarAccessVerification, resp.CurrentStep)
	require.NotNil(t, resp.UI)
	assert.Equal(t, UICalendarAccess, resp.UI.Component)
	assert.True(t, o.state.CalendarAccessStatus.NeedsRefresh)
	assert.False(t, o.state.CalendarAccessStatus.HasAccess)
}

func TestProcessMessage_CollaboratorPanicBecomesRetry(t *testing.T) {
	access := &mockAccess{}
	access.On("VerifyAccess", mock.Anything, testUser).
		Run(func(mock.Arguments) { panic("calendar client exploded") }).
		Return(model.CalendarAccessStatus{}, nil)
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{Access: access})

	var resp Response
	require.NotPanics(t, func() {
		resp = o.ProcessMessage(context.Background(), "Can you schedule a meeting with ana@example.com?", nil)
	})

	assert.Equal(t, MsgTryAgain, resp.Message)
	assert.True(t, resp.RequiresUserInput)
	state := o.GetWorkflowState()
	require.Len(t, state.Errors, 1)
	assert.Equal(t, string(KindUnknown), state.Errors[0].Kind)
	assert.Contains(t, state.Errors[0].Message, "calendar client exploded")
}

func TestAdvanceToStep_RedirectsToTimeCollection(t *testing.T) {
	o := newOrchestrator(readyState(model.StepMeetingTypeSelection), Dependencies{})
	o.state.MeetingTypeLocked = true

	resp := o.AdvanceToStep(context.Background(), model.StepAttendeeCollection, nil)

	assert.Equal(t, model.StepTimeDateCollection, resp.NextStep)
	assert.Equal(t, model.StepMeetingTypeSelection, resp.CurrentStep)
	assert.Contains(t, resp.ValidationErrors, transition.TimeCollectionMessage(model.StepAttendeeCollection))
	assert.True(t, resp.RequiresUserInput)
	require.NotEmpty(t, o.state.ValidationResults)
	assert.False(t, o.state.ValidationResults[len(o.state.ValidationResults)-1].IsValid)
}

func TestAdvanceToStep_RejectedDataIsNotMerged(t *testing.T) {
	o := newOrchestrator(readyState(model.StepMeetingTypeSelection), Dependencies{})
	o.state.MeetingTypeLocked = true
	before := o.state.MeetingData.Clone()

	resp := o.AdvanceToStep(context.Background(), model.StepAttendeeCollection, &model.MessageMetadata{
		Title:     "Leaked",
		Location:  "Room 9",
		Attendees: []string{"mallory@example.com"},
	})

	assert.Equal(t, model.StepTimeDateCollection, resp.NextStep)
	assert.NotEmpty(t, resp.ValidationErrors)
	assert.Equal(t, before, o.state.MeetingData)
}

func TestAdvanceToStep_MissingEdgeKeepsData(t *testing.T) {
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{})
	before := o.state.MeetingData.Clone()

	resp := o.AdvanceToStep(context.Background(), model.StepIntentDetection, &model.MessageMetadata{Title: "Leaked"})

	assert.Equal(t, model.StepTimeDateCollection, resp.CurrentStep)
	assert.Equal(t, before, o.state.MeetingData)
}

func TestAdvanceToStep_CurrentStepMustBeSatisfied(t *testing.T) {
	o := newOrchestrator(readyState(model.StepMeetingTypeSelection), Dependencies{})
	o.state.CalendarAccessStatus = nil

	resp := o.AdvanceToStep(context.Background(), model.StepTimeDateCollection, nil)

	assert.Equal(t, model.StepMeetingTypeSelection, resp.CurrentStep)
	assert.Equal(t, model.StepCalendarAccessVerification, resp.NextStep)
	assert.Contains(t, resp.ValidationErrors, transition.ErrCalendarAccess)
}

func TestAdvanceToStep_WithDataRunsTarget(t *testing.T) {
	o := newOrchestrator(readyState(model.StepMeetingTypeSelection), Dependencies{
		Options: Options{CollaboratorTimeout: time.Second},
	})

	resp := o.AdvanceToStep(context.Background(), model.StepTimeDateCollection, &model.MessageMetadata{StartTime: &slotStart})

	assert.Equal(t, model.StepAttendeeCollection, resp.CurrentStep)
	require.NotNil(t, o.state.MeetingData.EndTime)
	assert.Equal(t, slotStart.Add(30*time.Minute), *o.state.MeetingData.EndTime)
	assert.True(t, o.state.TimeCollectionComplete)
	assert.True(t, o.state.MeetingTypeLocked)
}

func TestAdvanceToStep_UnknownStep(t *testing.T) {
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{})

	resp := o.AdvanceToStep(context.Background(), model.Step("lunch"), nil)

	assert.Equal(t, model.StepTimeDateCollection, resp.CurrentStep)
	assert.NotEmpty(t, resp.ValidationErrors)
}

func TestProcessStepTransition_RejectsMissingEdge(t *testing.T) {
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{})

	resp := o.ProcessStepTransition(context.Background(), model.StepIntentDetection, model.StepCompleted)

	assert.Contains(t, resp.Message, "Invalid transition")
	assert.Equal(t, model.StepIntentDetection, resp.CurrentStep)
	assert.False(t, o.state.IsComplete)
}

func TestProcessStepTransition_FromMustBeCurrent(t *testing.T) {
	o := newOrchestrator(readyState(model.StepAttendeeCollection), Dependencies{})

	resp := o.ProcessStepTransition(context.Background(), model.StepIntentDetection, model.StepCalendarAccessVerification)

	assert.Equal(t, model.StepAttendeeCollection, o.state.CurrentStep)
	assert.Contains(t, resp.Message, "workflow is at attendee_collection")
}

func TestProcessStepTransition_MovesExactlyWhenValidatorAccepts(t *testing.T) {
	bases := map[string]func() *model.WorkflowState{
		"empty": func() *model.WorkflowState { return model.NewWorkflowState("s1", testUser.ID, testNow) },
		"ready": func() *model.WorkflowState { return readyState(model.StepCreation) },
		"done":  func() *model.WorkflowState { return readyState(model.StepCompleted) },
	}
	v := transition.New()

	for name, base := range bases {
		for _, from := range model.Steps {
			for _, to := range model.Steps {
				s := base()
				s.CurrentStep = from
				want := v.ValidateTransition(from, to, s.Clone()).IsValid

				o := newOrchestrator(s, Dependencies{})
				o.ProcessStepTransition(context.Background(), from, to)

				assert.Equal(t, want, o.state.CurrentStep != from, "%s: %s -> %s", name, from, to)
				if want {
					assert.Equal(t, to, o.state.CurrentStep)
				}
			}
		}
	}
}

func TestProcessMessage_PhysicalWithoutAttendeesGoesToDetails(t *testing.T) {
	state := readyState(model.StepTimeDateCollection)
	state.MeetingData.Type = model.MeetingTypePhysical
	attendees := &mockAttendees{}
	o := newOrchestrator(state, Dependencies{Availability: freeCalendar(), Attendees: attendees})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{StartTime: &slotStart})

	assert.Equal(t, model.StepMeetingDetailsCollection, resp.CurrentStep)
	assert.Equal(t, "What should the meeting be called, and where will it take place?", resp.Message)
	attendees.AssertNotCalled(t, "ValidateBatch", mock.Anything, mock.Anything, mock.Anything)

	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Title: "Offsite", Location: "Room 4"})
	assert.Equal(t, model.StepAgendaApproval, resp.CurrentStep)
	assert.Contains(t, resp.Warnings, transition.WarnPhysicalNoAttendees)
}

func TestProcessMessage_InvalidAttendeesAreRemoved(t *testing.T) {
	attendees := &mockAttendees{}
	attendees.On("ValidateBatch", mock.Anything, []string{"ana@example.com", "ghost@example.com"}, testUser).
		Return([]attendee.Result{
			{Email: "ana@example.com", IsValid: true, Exists: true, FirstName: "Ana"},
			{Email: "ghost@example.com", IsValid: false},
		}, nil)
	o := newOrchestrator(readyState(model.StepAttendeeCollection), Dependencies{Attendees: attendees})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Attendees: []string{"ana@example.com", "ghost@example.com"}})

	assert.Equal(t, model.StepAttendeeCollection, resp.CurrentStep)
	assert.Contains(t, resp.ValidationErrors, "Could not validate attendee ghost@example.com")
	require.Len(t, o.state.MeetingData.Attendees, 1)
	assert.True(t, o.state.MeetingData.Attendees[0].IsValidated)
	assert.Equal(t, "Ana", o.state.MeetingData.Attendees[0].FirstName)
	assert.False(t, o.state.AttendeeCollectionComplete)

	// The remaining attendee is already validated, so the next message moves on.
	resp = o.ProcessMessage(context.Background(), "that's everyone", nil)
	assert.Equal(t, model.StepMeetingDetailsCollection, resp.CurrentStep)
	assert.True(t, o.state.AttendeeCollectionComplete)
	attendees.AssertNumberOfCalls(t, "ValidateBatch", 1)
}

func TestProcessMessage_MeetingTypeLock(t *testing.T) {
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{MeetingType: model.MeetingTypePhysical})
	assert.Contains(t, resp.Warnings, "Meeting type is locked as online")
	assert.Equal(t, model.MeetingTypeOnline, o.state.MeetingData.Type)

	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{MeetingType: model.MeetingTypePhysical, ChangeMeetingType: true})
	assert.Contains(t, resp.Warnings, "Meeting type changed to physical")
	assert.Equal(t, model.MeetingTypePhysical, o.state.MeetingData.Type)
	assert.True(t, o.state.MeetingTypeLocked)
}

func TestProcessMessage_ConflictResolutionWithAlternative(t *testing.T) {
	alt := model.TimeSlot{Start: slotStart.Add(time.Hour), End: slotEnd.Add(time.Hour)}
	avail := &mockAvailability{}
	avail.On("CheckConflicts", mock.Anything, testUser, slotStart, slotEnd).Return(ConflictResult{
		HasConflicts:      true,
		ConflictingEvents: []model.CalendarEvent{{ID: "e1", Title: "Standup", Start: slotStart, End: slotEnd}},
		TotalConflicts:    1,
	}, nil).Once()
	avail.On("SuggestAlternatives", mock.Anything, testUser, slotStart, 30, 3).Return([]model.TimeSlot{alt}, nil).Once()
	avail.On("CheckConflicts", mock.Anything, testUser, alt.Start, alt.End).Return(ConflictResult{}, nil).Once()
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{Availability: avail})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{StartTime: &slotStart, EndTime: &slotEnd})
	assert.Equal(t, model.StepConflictResolution, resp.CurrentStep)
	require.NotNil(t, resp.UI)
	assert.Equal(t, UIConflictResolver, resp.UI.Component)
	require.NotNil(t, o.state.AvailabilityResult)
	assert.Equal(t, []model.TimeSlot{alt}, o.state.AvailabilityResult.Alternatives)

	slot := 0
	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{SelectedSlot: &slot})
	assert.Equal(t, model.StepAttendeeCollection, resp.CurrentStep)
	assert.True(t, alt.Start.Equal(*o.state.MeetingData.StartTime))
	assert.False(t, o.state.AvailabilityResult.HasConflicts)
	avail.AssertExpectations(t)
}

func TestProcessMessage_KeepOriginalTimeAcknowledgesConflict(t *testing.T) {
	avail := &mockAvailability{}
	avail.On("CheckConflicts", mock.Anything, testUser, slotStart, slotEnd).
		Return(ConflictResult{HasConflicts: true, TotalConflicts: 1}, nil)
	avail.On("SuggestAlternatives", mock.Anything, testUser, slotStart, 30, 3).Return(nil, errors.New("busy"))
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{Availability: avail})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{StartTime: &slotStart, EndTime: &slotEnd})
	assert.Equal(t, model.StepConflictResolution, resp.CurrentStep)
	assert.Contains(t, resp.Warnings, "Alternative times are unavailable right now")

	slot := 2
	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{SelectedSlot: &slot})
	assert.Equal(t, model.StepConflictResolution, resp.CurrentStep)
	assert.NotEmpty(t, resp.ValidationErrors)

	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{KeepOriginalTime: true})
	assert.Equal(t, model.StepAttendeeCollection, resp.CurrentStep)
	assert.True(t, o.state.AvailabilityResult.Acknowledged)
	assert.Contains(t, resp.Warnings, transition.WarnUnresolvedConflicts)
}

func TestProcessMessage_AgendaFailureFallsBackToTemplate(t *testing.T) {
	gen := &mockAgenda{}
	gen.On("GenerateAgenda", mock.Anything, mock.Anything, mock.Anything).
		Return(model.Agenda{}, NewError(KindQuotaExceeded, "", "rate limited"))
	state := readyState(model.StepMeetingDetailsCollection)
	o := newOrchestrator(state, Dependencies{Agenda: gen})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Title: "Roadmap sync"})

	assert.Equal(t, model.StepAgendaApproval, resp.CurrentStep)
	assert.Contains(t, resp.Warnings, WarnTemplateAgenda)
	require.NotNil(t, o.state.MeetingData.Agenda)
	assert.Equal(t, model.AgendaSourceTemplate, o.state.MeetingData.Agenda.Source)
	require.NotEmpty(t, o.state.Errors)
	assert.True(t, o.state.Errors[len(o.state.Errors)-1].Background)
	assert.Equal(t, string(KindQuotaExceeded), o.state.Errors[len(o.state.Errors)-1].Kind)
}

func TestProcessMessage_AgendaRegenerate(t *testing.T) {
	gen := &mockAgenda{}
	gen.On("GenerateAgenda", mock.Anything, mock.Anything, mock.Anything).
		Return(model.Agenda{Title: "Fresh", DurationMinutes: 30, Source: model.AgendaSourceAI}, nil).Once()
	o := newOrchestrator(readyState(model.StepAgendaApproval), Dependencies{Agenda: gen})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Action: model.ActionRegenerateAgenda})

	assert.Equal(t, model.StepAgendaApproval, resp.CurrentStep)
	assert.Equal(t, "Fresh", o.state.MeetingData.Agenda.Title)
	assert.Contains(t, resp.Message, "Fresh (30 min)")
	gen.AssertExpectations(t)
}

func TestProcessMessage_ApprovalThroughCompletion(t *testing.T) {
	events := &mockEvents{}
	events.On("Create", mock.Anything, testUser, mock.MatchedBy(func(req EventRequest) bool {
		return req.Title == "Roadmap sync" && req.Start.Equal(slotStart) &&
			len(req.Attendees) == 1 && req.Attendees[0] == "ana@example.com" && req.Agenda != ""
	}), model.MeetingTypeOnline).Return(CreatedEvent{ID: "evt-42", HTMLLink: "https://calendar.example.com/evt-42", MeetingLink: "https://meet.example.com/x"}, nil).Once()
	pub := &fakePublisher{}
	o := newOrchestrator(readyState(model.StepAgendaApproval), Dependencies{Events: events, Publisher: pub})

	resp := o.ProcessMessage(context.Background(), "Looks good", nil)
	assert.Equal(t, model.StepApproval, resp.CurrentStep)
	assert.Equal(t, model.MeetingStatusPendingApproval, o.state.MeetingData.Status)
	assert.Equal(t, model.ModeApproval, o.conv.Mode())
	require.NotNil(t, resp.UI)
	assert.Equal(t, UIMeetingApproval, resp.UI.Component)

	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Action: model.ActionApprove})
	assert.Equal(t, model.StepCompleted, resp.CurrentStep)
	assert.True(t, resp.IsComplete)
	assert.False(t, resp.RequiresUserInput)
	assert.Contains(t, resp.Message, "https://meet.example.com/x")

	m := o.state.MeetingData
	assert.Equal(t, model.MeetingStatusCreated, m.Status)
	assert.Equal(t, "evt-42", m.EventID)
	assert.Contains(t, pub.types(), model.EventTypeMeetingCreated)
	events.AssertExpectations(t)

	// Later messages do not touch a created meeting.
	resp = o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Title: "Other"})
	assert.Equal(t, model.StepCompleted, resp.CurrentStep)
	assert.Equal(t, "Roadmap sync", o.state.MeetingData.Title)
}

func TestProcessMessage_ApprovalRejectReturnsToDetails(t *testing.T) {
	o := newOrchestrator(readyState(model.StepApproval), Dependencies{})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Action: model.ActionReject})

	assert.Equal(t, model.StepMeetingDetailsCollection, resp.CurrentStep)
	assert.Equal(t, model.MeetingStatusDraft, o.state.MeetingData.Status)
	assert.True(t, resp.RequiresUserInput)
}

func TestProcessMessage_EditAfterApprovalResetsStatus(t *testing.T) {
	o := newOrchestrator(readyState(model.StepApproval), Dependencies{})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Title: "Quarterly roadmap"})

	assert.Contains(t, resp.Warnings, WarnApprovalReset)
	assert.Equal(t, model.MeetingStatusDraft, o.state.MeetingData.Status)
	assert.Equal(t, model.StepAgendaApproval, resp.CurrentStep)
}

func TestProcessMessage_CreationRejectsPastStart(t *testing.T) {
	events := &mockEvents{}
	state := readyState(model.StepApproval)
	past, pastEnd := testNow.Add(-time.Hour), testNow.Add(-30*time.Minute)
	state.MeetingData.StartTime, state.MeetingData.EndTime = &past, &pastEnd
	o := newOrchestrator(state, Dependencies{Events: events})

	resp := o.ProcessMessage(context.Background(), "", &model.MessageMetadata{Action: model.ActionApprove})

	assert.Equal(t, model.StepTimeDateCollection, resp.CurrentStep)
	assert.Contains(t, resp.ValidationErrors, ErrStartInPast)
	events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReportBackgroundError_DrainedOnNextOperation(t *testing.T) {
	o := newOrchestrator(readyState(model.StepTimeDateCollection), Dependencies{})

	done := make(chan struct{})
	go func() {
		o.ReportBackgroundError(errors.New("disk full"))
		close(done)
	}()
	<-done
	assert.Empty(t, o.state.Errors)

	state := o.GetWorkflowState()
	require.Len(t, state.Errors, 1)
	assert.True(t, state.Errors[0].Background)
	assert.Equal(t, string(KindUnknown), state.Errors[0].Kind)
	assert.Equal(t, model.StepTimeDateCollection, state.Errors[0].Step)
}

func TestPersist_EnqueuesSnapshot(t *testing.T) {
	p := &fakePersister{}
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{Persister: p})

	o.ProcessMessage(context.Background(), "hi", nil)

	require.Len(t, p.states, 1)
	snap := p.states[0]
	assert.Equal(t, "s1", snap.ID)
	state, messages, err := DecodeSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, model.StepIntentDetection, state.CurrentStep)
	assert.Len(t, messages, 2)

	p.full = true
	o.ProcessMessage(context.Background(), "still there?", nil)
	require.NotEmpty(t, o.state.Errors)
	assert.Equal(t, "persistence queue full", o.state.Errors[len(o.state.Errors)-1].Message)
}

func TestPublishFailureIsRecordedAsBackgroundError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	o := newOrchestrator(model.NewWorkflowState("s1", testUser.ID, testNow), Dependencies{Access: validAccess(), Publisher: pub})

	resp := o.ProcessMessage(context.Background(), "schedule a meeting", nil)

	assert.Equal(t, model.StepMeetingTypeSelection, resp.CurrentStep)
	require.NotEmpty(t, o.state.Errors)
	for _, e := range o.state.Errors {
		assert.True(t, e.Background)
	}
}

func TestProcessMessage_NegatedOrQuestionDoesNotApprove(t *testing.T) {
	for _, text := range []string{
		"I don't approve",
		"can you confirm who's invited?",
		"Do not finalize it yet",
		"No, that works only if Bob joins",
	} {
		t.Run(text, func(t *testing.T) {
			events := &mockEvents{}
			o := newOrchestrator(readyState(model.StepApproval), Dependencies{Events: events})

			resp := o.ProcessMessage(context.Background(), text, nil)

			assert.Equal(t, model.StepApproval, resp.CurrentStep)
			assert.Equal(t, model.MeetingStatusPendingApproval, o.state.MeetingData.Status)
			events.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessMessage_MeetingTypeFromEarlierTurn(t *testing.T) {
	state := readyState(model.StepMeetingTypeSelection)
	state.MeetingData.Type = ""
	o := newOrchestrator(state, Dependencies{})
	_, err := o.conv.AddMessage(model.ConversationMessage{Role: model.RoleUser, Content: "We should do it over a video call"})
	require.NoError(t, err)
	_, err = o.conv.AddMessage(model.ConversationMessage{Role: model.RoleAssistant, Content: "Should this be an online meeting or an in-person meeting?"})
	require.NoError(t, err)

	resp := o.ProcessMessage(context.Background(), "whatever you think is best", nil)

	assert.Equal(t, model.MeetingTypeOnline, o.state.MeetingData.Type)
	assert.Equal(t, model.StepTimeDateCollection, resp.CurrentStep)
}

func TestProcessMessage_NeutralReplyKeepsAskingForType(t *testing.T) {
	state := readyState(model.StepMeetingTypeSelection)
	state.MeetingData.Type = ""
	o := newOrchestrator(state, Dependencies{})

	resp := o.ProcessMessage(context.Background(), "whatever you think is best", nil)

	assert.Empty(t, o.state.MeetingData.Type)
	assert.Equal(t, model.StepMeetingTypeSelection, resp.CurrentStep)
	require.NotNil(t, resp.UI)
	assert.Equal(t, UIMeetingType, resp.UI.Component)
}
