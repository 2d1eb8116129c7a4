// Package conversation keeps the ordered message history of a session and
// condenses it into a bounded context for downstream consumers.
package conversation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// Options bounds the context and controls compression.
type Options struct {
	// MaxTokens and MaxMessages are the limits above which compression is
	// recommended.
	MaxTokens   int
	MaxMessages int
	// KeepInitial and KeepRecent are the number of messages preserved
	// verbatim at each end of a compressed transcript.
	KeepInitial int
	KeepRecent  int
	// RecentTurns is the number of turns shown in an uncompressed summary.
	RecentTurns int
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		MaxTokens:   2000,
		MaxMessages: 20,
		KeepInitial: 2,
		KeepRecent:  6,
		RecentTurns: 5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = d.MaxMessages
	}
	if o.KeepInitial <= 0 {
		o.KeepInitial = d.KeepInitial
	}
	if o.KeepRecent <= 0 {
		o.KeepRecent = d.KeepRecent
	}
	if o.RecentTurns <= 0 {
		o.RecentTurns = d.RecentTurns
	}
	return o
}

// EstimateTokenCount approximates the token cost of messages as one token per
// four bytes of content, rounded up.
func EstimateTokenCount(messages []model.ConversationMessage) int {
	n := 0
	for _, m := range messages {
		n += len(m.Content)
	}
	return int(math.Ceil(float64(n) / 4))
}

// Context is the conversation state of one session. Like the workflow state
// it belongs to, it has a single writer and is not safe for concurrent use.
type Context struct {
	opts       Options
	classifier Classifier
	now        func() time.Time

	messages         []model.ConversationMessage
	mode             model.Mode
	meetingData      model.Meeting
	compressionLevel int
	compressedAt     int
}

// New creates an empty context in casual mode. A nil classifier selects the
// keyword classifier.
func New(opts Options, classifier Classifier) *Context {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &Context{
		opts:        opts.withDefaults(),
		classifier:  classifier,
		now:         time.Now,
		mode:        model.ModeCasual,
		meetingData: model.Meeting{Status: model.MeetingStatusDraft},
	}
}

// Restore rebuilds a context from persisted parts.
func Restore(opts Options, classifier Classifier, messages []model.ConversationMessage, mode model.Mode, meeting model.Meeting, level int) *Context {
	c := New(opts, classifier)
	c.messages = append(c.messages, messages...)
	if mode != "" {
		c.mode = mode
	}
	c.meetingData = meeting.Clone()
	c.compressionLevel = level
	return c
}

// AddMessage appends msg to the transcript, assigning an id and timestamp
// when missing. The stored message is a private copy.
func (c *Context) AddMessage(msg model.ConversationMessage) (model.ConversationMessage, error) {
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return model.ConversationMessage{}, fmt.Errorf("invalid message role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}
	msg.Metadata = cloneMetadata(msg.Metadata)

	c.messages = append(c.messages, msg)
	return msg, nil
}

// Messages returns a copy of the transcript.
func (c *Context) Messages() []model.ConversationMessage {
	return append([]model.ConversationMessage(nil), c.messages...)
}

// Len returns the number of messages.
func (c *Context) Len() int {
	return len(c.messages)
}

// LastUserMessage returns the most recent user message.
func (c *Context) LastUserMessage() (model.ConversationMessage, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == model.RoleUser {
			return c.messages[i], true
		}
	}
	return model.ConversationMessage{}, false
}

// Mode returns the current conversational mode.
func (c *Context) Mode() model.Mode {
	return c.mode
}

// SetMode changes the conversational mode.
func (c *Context) SetMode(mode model.Mode) {
	c.mode = mode
}

// MeetingData returns the meeting snapshot held by the context.
func (c *Context) MeetingData() model.Meeting {
	return c.meetingData.Clone()
}

// SetMeetingData replaces the meeting snapshot.
func (c *Context) SetMeetingData(m model.Meeting) {
	c.meetingData = m.Clone()
}

// CompressionLevel returns how many times the context has been compressed.
func (c *Context) CompressionLevel() int {
	return c.compressionLevel
}

// Classifier returns the classifier used for mode and type detection.
func (c *Context) Classifier() Classifier {
	return c.classifier
}

// ModeTransition is an advisory mode change detected in the conversation.
type ModeTransition struct {
	From     model.Mode `json:"from"`
	To       model.Mode `json:"to"`
	Detected bool       `json:"detected"`
}

// DetectModeTransition classifies the latest user message against the
// current mode. It never changes the mode itself.
func (c *Context) DetectModeTransition(ctx context.Context) (ModeTransition, error) {
	t := ModeTransition{From: c.mode, To: c.mode}
	msg, ok := c.LastUserMessage()
	if !ok {
		return t, nil
	}

	next, err := c.classifier.ClassifyMode(ctx, c.mode, msg.Content)
	if err != nil {
		return t, err
	}
	if next != "" && next != c.mode {
		t.To = next
		t.Detected = true
	}
	return t, nil
}

func cloneMetadata(md *model.MessageMetadata) *model.MessageMetadata {
	if md == nil {
		return nil
	}
	c := *md
	c.Attendees = append([]string(nil), md.Attendees...)
	if md.StartTime != nil {
		t := *md.StartTime
		c.StartTime = &t
	}
	if md.EndTime != nil {
		t := *md.EndTime
		c.EndTime = &t
	}
	if md.SelectedSlot != nil {
		slot := *md.SelectedSlot
		c.SelectedSlot = &slot
	}
	return &c
}
