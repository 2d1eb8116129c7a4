// Package service owns the live meeting sessions of the assistant.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/conversation"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown sessions and for sessions of
// another user.
var ErrSessionNotFound = errors.New("session not found")

// Session is one user's workflow. Operations on it are serialized.
type Session struct {
	ID     string
	UserID string

	mu   sync.Mutex
	orch *workflow.Orchestrator
}

// SessionConfig configures a SessionService.
type SessionConfig struct {
	// Workflow holds the collaborators shared by every session. Its
	// Persister field is replaced by Persister below.
	Workflow     workflow.Dependencies
	Conversation conversation.Options
	Classifier   conversation.Classifier
	Store        storage.Store
	Persister    *Persister
	Now          func() time.Time
	Log          *logger.Logger
}

// SessionService creates, restores and drives sessions.
type SessionService struct {
	cfg SessionConfig
	log *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a service from cfg.
func NewSessionService(cfg SessionConfig) *SessionService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = conversation.NewKeywordClassifier()
	}
	if cfg.Persister != nil {
		cfg.Workflow.Persister = cfg.Persister
	}
	if cfg.Workflow.Now == nil {
		cfg.Workflow.Now = cfg.Now
	}
	if cfg.Workflow.Log == nil {
		cfg.Workflow.Log = cfg.Log
	}
	return &SessionService{
		cfg:      cfg,
		log:      cfg.Log.Named("sessions"),
		sessions: make(map[string]*Session),
	}
}

// RouteFailures hands save failures to the sessions they belong to until
// ctx ends.
func (s *SessionService) RouteFailures(ctx context.Context) {
	if s.cfg.Persister == nil {
		return
	}
	failures := s.cfg.Persister.Failures()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-failures:
			s.mu.RLock()
			sess, ok := s.sessions[f.SessionID]
			s.mu.RUnlock()
			if !ok {
				s.log.Warn("save failure for unloaded session", zap.String("session_id", f.SessionID))
				continue
			}
			sess.orch.ReportBackgroundError(fmt.Errorf("persist session: %w", f.Err))
		}
	}
}

// Create starts a session for user.
func (s *SessionService) Create(ctx context.Context, user model.User) (*model.WorkflowState, error) {
	id := uuid.Must(uuid.NewV7()).String()
	state := model.NewWorkflowState(id, user.ID, s.cfg.Now())
	conv := conversation.New(s.cfg.Conversation, s.cfg.Classifier)

	sess := &Session{ID: id, UserID: user.ID, orch: workflow.New(s.cfg.Workflow, user, state, conv)}
	s.add(sess)

	if s.cfg.Persister != nil {
		snap, err := sess.orch.Snapshot()
		if err != nil {
			return nil, err
		}
		s.cfg.Persister.Enqueue(snap)
	}

	s.log.Info("session created", zap.String("session_id", id), zap.String("user_id", user.ID))
	return sess.orch.GetWorkflowState(), nil
}

func (s *SessionService) add(sess *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sess.ID]; ok {
		return existing
	}
	s.sessions[sess.ID] = sess
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return sess
}

// get returns the live session, restoring it from the store when it is
// not in memory.
func (s *SessionService) get(ctx context.Context, user model.User, id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		if sess.UserID != user.ID {
			return nil, ErrSessionNotFound
		}
		return sess, nil
	}

	if s.cfg.Store == nil {
		return nil, ErrSessionNotFound
	}
	snap, err := s.cfg.Store.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if snap.UserID != user.ID {
		return nil, ErrSessionNotFound
	}

	sess, err = s.restore(user, snap)
	if err != nil {
		return nil, err
	}
	s.log.Info("session restored", zap.String("session_id", id), zap.String("step", string(snap.CurrentStep)))
	return s.add(sess), nil
}

func (s *SessionService) restore(user model.User, snap model.PersistedState) (*Session, error) {
	state, messages, err := workflow.DecodeSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	meeting := state.MeetingData
	if len(snap.MeetingData) > 0 {
		if err := json.Unmarshal(snap.MeetingData, &meeting); err != nil {
			return nil, fmt.Errorf("decode meeting: %w", err)
		}
	}
	conv := conversation.Restore(s.cfg.Conversation, s.cfg.Classifier, messages, snap.CurrentMode, meeting, snap.CompressionLevel)
	return &Session{
		ID:     snap.ID,
		UserID: snap.UserID,
		orch:   workflow.New(s.cfg.Workflow, user, state, conv),
	}, nil
}

// ProcessMessage runs a user message through the session's workflow.
func (s *SessionService) ProcessMessage(ctx context.Context, user model.User, id, content string, md *model.MessageMetadata) (workflow.Response, error) {
	sess, err := s.get(ctx, user, id)
	if err != nil {
		return workflow.Response{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orch.ProcessMessage(ctx, content, md), nil
}

// AdvanceToStep asks the session's workflow to move to target.
func (s *SessionService) AdvanceToStep(ctx context.Context, user model.User, id string, target model.Step, data *model.MessageMetadata) (workflow.Response, error) {
	sess, err := s.get(ctx, user, id)
	if err != nil {
		return workflow.Response{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orch.AdvanceToStep(ctx, target, data), nil
}

// ProcessStepTransition applies an explicit from/to transition.
func (s *SessionService) ProcessStepTransition(ctx context.Context, user model.User, id string, from, to model.Step) (workflow.Response, error) {
	sess, err := s.get(ctx, user, id)
	if err != nil {
		return workflow.Response{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orch.ProcessStepTransition(ctx, from, to), nil
}

// State returns a copy of the session's workflow state.
func (s *SessionService) State(ctx context.Context, user model.User, id string) (*model.WorkflowState, error) {
	sess, err := s.get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orch.GetWorkflowState(), nil
}

// CompressedContext returns the bounded conversation view of a session.
func (s *SessionService) CompressedContext(ctx context.Context, user model.User, id string) (conversation.CompressedContext, error) {
	sess, err := s.get(ctx, user, id)
	if err != nil {
		return conversation.CompressedContext{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.orch.CompressedContext(), nil
}

// Evict drops a session from memory. It is restored from the store on the
// next request.
func (s *SessionService) Evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

// Active returns how many sessions are in memory.
func (s *SessionService) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
