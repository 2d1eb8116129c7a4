package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/internal/workflow"
)

const (
	// StreamName is the name of the workflow events stream.
	StreamName = "MEETING_EVENTS"

	// SubjectPrefix is the prefix for all workflow event subjects.
	SubjectPrefix = "meeting"
)

// EventStream publishes workflow events to JetStream.
type EventStream struct {
	client *Client
}

var _ workflow.EventPublisher = (*EventStream)(nil)

// NewEventStream creates a publisher on client.
func NewEventStream(client *Client) *EventStream {
	return &EventStream{client: client}
}

// EnsureStream creates the events stream unless it already exists.
func (s *EventStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Meeting workflow transitions, rejections and created meetings",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(userID, sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s.event.%s", SubjectPrefix, userID, sessionID, eventType)
}

// SessionFilter returns the filter subject for every event of a session.
func SessionFilter(userID, sessionID string) string {
	return fmt.Sprintf("%s.%s.%s.>", SubjectPrefix, userID, sessionID)
}

// Publish implements workflow.EventPublisher. The event id doubles as the
// JetStream message id so retried publishes are deduplicated.
func (s *EventStream) Publish(ctx context.Context, event model.WorkflowEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(event.UserID, event.SessionID, event.Type)
	if _, err := s.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Events reads up to limit events of a session, oldest first.
func (s *EventStream) Events(ctx context.Context, userID, sessionID string, limit int) ([]model.WorkflowEvent, error) {
	consumer, err := s.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(userID, sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	var events []model.WorkflowEvent
	for msg := range batch.Messages() {
		var event model.WorkflowEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := batch.Error(); err != nil && err != context.DeadlineExceeded && err != jetstream.ErrNoMessages {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return events, nil
}
