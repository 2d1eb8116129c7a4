package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/storage"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// Failure is a snapshot that could not be saved.
type Failure struct {
	SessionID string
	Err       error
}

// Persister saves snapshots from a bounded queue on one worker, so the
// snapshots of a session are written in the order they were queued.
type Persister struct {
	store    storage.Store
	timeout  time.Duration
	log      *logger.Logger
	queue    chan model.PersistedState
	failures chan Failure

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ workflow.Persister = (*Persister)(nil)

// NewPersister creates a persister for store. Each save is bounded by
// timeout.
func NewPersister(store storage.Store, queueSize int, timeout time.Duration, log *logger.Logger) *Persister {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Persister{
		store:    store,
		timeout:  timeout,
		log:      log.Named("persister"),
		queue:    make(chan model.PersistedState, queueSize),
		failures: make(chan Failure, queueSize),
		done:     make(chan struct{}),
	}
}

// Start runs the worker until Stop.
func (p *Persister) Start() {
	go p.run()
}

func (p *Persister) run() {
	defer close(p.done)
	for state := range p.queue {
		metrics.PersistQueueDepth.Set(float64(len(p.queue)))
		p.save(state)
	}
}

func (p *Persister) save(state model.PersistedState) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	err := p.store.Save(ctx, state)
	if err == nil {
		return
	}
	metrics.PersistenceFailuresTotal.WithLabelValues("save").Inc()
	p.log.Error("failed to save session", zap.String("session_id", state.ID), zap.Error(err))

	select {
	case p.failures <- Failure{SessionID: state.ID, Err: err}:
	default:
		p.log.Warn("failure channel full, dropping report", zap.String("session_id", state.ID))
	}
}

// Enqueue implements workflow.Persister. It never blocks.
func (p *Persister) Enqueue(state model.PersistedState) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- state:
		metrics.PersistQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		return false
	}
}

// Failures delivers save failures. Reports are dropped when nobody reads.
func (p *Persister) Failures() <-chan Failure {
	return p.failures
}

// Stop refuses new snapshots and waits until the queue is written or ctx
// ends.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
