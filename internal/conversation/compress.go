package conversation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/metrics"
)

// ReasonWithinLimits is reported when no compression is needed.
const ReasonWithinLimits = "Context is within acceptable limits"

// Strategy describes how many messages to keep verbatim at each end of the
// transcript. Both counts are positive.
type Strategy struct {
	KeepRecentCount  int `json:"keep_recent_count"`
	KeepInitialCount int `json:"keep_initial_count"`
}

// Recommendation is the outcome of GetCompressionRecommendation.
type Recommendation struct {
	ShouldCompress  bool      `json:"should_compress"`
	Reason          string    `json:"reason"`
	EstimatedTokens int       `json:"estimated_tokens"`
	MessageCount    int       `json:"message_count"`
	Strategy        *Strategy `json:"strategy,omitempty"`
}

// CompressedContext is the bounded view of a conversation.
type CompressedContext struct {
	Text             string                      `json:"text"`
	Messages         []model.ConversationMessage `json:"messages"`
	Mode             model.Mode                  `json:"mode"`
	MeetingData      model.Meeting               `json:"meeting_data"`
	Compressed       bool                        `json:"compressed"`
	OriginalTokens   int                         `json:"original_tokens"`
	CompressedTokens int                         `json:"compressed_tokens"`
	CompressionRatio float64                     `json:"compression_ratio"`
	CompressionLevel int                         `json:"compression_level"`
}

// GetCompressionRecommendation decides whether the transcript exceeds its
// limits and, if so, how much of each end to keep.
func (c *Context) GetCompressionRecommendation() Recommendation {
	n := len(c.messages)
	tokens := EstimateTokenCount(c.messages)
	rec := Recommendation{EstimatedTokens: tokens, MessageCount: n}

	if tokens <= c.opts.MaxTokens && n <= c.opts.MaxMessages {
		rec.Reason = ReasonWithinLimits
		return rec
	}

	keepInitial, keepRecent := c.opts.KeepInitial, c.opts.KeepRecent
	if keepInitial+keepRecent >= n {
		// Leave at least one message in the middle when there are enough.
		keepInitial = max(1, min(keepInitial, (n-1)/3))
		keepRecent = max(1, n-keepInitial-1)
	}

	rec.ShouldCompress = true
	rec.Reason = fmt.Sprintf("Context has %d messages (~%d tokens), limits are %d messages and %d tokens",
		n, tokens, c.opts.MaxMessages, c.opts.MaxTokens)
	rec.Strategy = &Strategy{KeepRecentCount: keepRecent, KeepInitialCount: keepInitial}
	return rec
}

// GetCompressedContext returns the conversation condensed to fit its limits.
// Without compression the ratio is 1; with compression it is strictly below 1
// for any non-empty transcript.
func (c *Context) GetCompressedContext() CompressedContext {
	rec := c.GetCompressionRecommendation()
	original := EstimateTokenCount(c.messages)

	if !rec.ShouldCompress {
		return CompressedContext{
			Text:             c.summaryText(),
			Messages:         c.Messages(),
			Mode:             c.mode,
			MeetingData:      c.MeetingData(),
			OriginalTokens:   original,
			CompressedTokens: original,
			CompressionRatio: 1,
			CompressionLevel: c.compressionLevel,
		}
	}

	messages, text := c.compress(*rec.Strategy, original)
	if c.compressedAt != len(c.messages) {
		c.compressionLevel++
		c.compressedAt = len(c.messages)
		metrics.ContextCompressionsTotal.Inc()
	}

	compressed := EstimateTokenCount(messages)
	ratio := 0.0
	if original > 0 {
		ratio = float64(compressed) / float64(original)
	}

	return CompressedContext{
		Text:             text,
		Messages:         messages,
		Mode:             c.mode,
		MeetingData:      c.MeetingData(),
		Compressed:       true,
		OriginalTokens:   original,
		CompressedTokens: compressed,
		CompressionRatio: ratio,
		CompressionLevel: c.compressionLevel,
	}
}

// summaryText is the deterministic uncompressed rendering.
func (c *Context) summaryText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", c.mode)
	recent := c.messages
	if len(recent) > c.opts.RecentTurns {
		recent = recent[len(recent)-c.opts.RecentTurns:]
	}
	if len(recent) == 0 {
		b.WriteString("Recent: (none)")
		return b.String()
	}
	b.WriteString("Recent:")
	for _, m := range recent {
		fmt.Fprintf(&b, "\n%s: %s", m.Role, m.Content)
	}
	return b.String()
}

type summaryDetail int

const (
	summaryNone summaryDetail = iota
	summaryBrief
	summaryFull
)

// compress keeps the strategy's ends of the transcript verbatim and
// replaces the middle with a synthesized narrative, dropping detail from
// the narrative until the result is strictly smaller than the original.
func (c *Context) compress(s Strategy, original int) ([]model.ConversationMessage, string) {
	n := len(c.messages)
	keepInitial := min(s.KeepInitialCount, n)
	keepRecent := min(s.KeepRecentCount, n-keepInitial)

	var messages []model.ConversationMessage
	var text string
	for detail := summaryFull; detail >= summaryNone; detail-- {
		messages, text = c.build(keepInitial, keepRecent, detail, -1)
		if original == 0 || EstimateTokenCount(messages) < original {
			return messages, text
		}
	}

	// Nothing in the middle to collapse: only the opening message can give
	// way. This happens for transcripts of one or two oversized messages.
	chars := utf8.RuneCountInString(c.messages[0].Content)
	for chars > 0 {
		chars /= 2
		messages, text = c.build(keepInitial, keepRecent, summaryNone, chars)
		if EstimateTokenCount(messages) < original {
			break
		}
	}
	return messages, text
}

// build assembles the compressed transcript. A non-negative openingChars
// clips the first message to that many characters.
func (c *Context) build(keepInitial, keepRecent int, detail summaryDetail, openingChars int) ([]model.ConversationMessage, string) {
	n := len(c.messages)
	initial := c.messages[:keepInitial]
	recent := c.messages[n-keepRecent:]
	middle := c.messages[keepInitial : n-keepRecent]

	out := make([]model.ConversationMessage, 0, keepInitial+keepRecent+1)
	out = append(out, initial...)
	if openingChars >= 0 && len(out) > 0 {
		out[0] = truncateMessage(out[0], openingChars)
	}

	narrative := ""
	if len(middle) > 0 && detail > summaryNone {
		narrative = narrate(middle, c.meetingData, detail)
		out = append(out, model.ConversationMessage{
			ID:        "summary",
			Role:      model.RoleAssistant,
			Content:   narrative,
			Timestamp: middle[len(middle)-1].Timestamp,
		})
	}
	out = append(out, recent...)

	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", c.mode)
	fmt.Fprintf(&b, "Meeting: %s\n", describeMeeting(c.meetingData))
	writeTurns(&b, "Opening:", out[:keepInitial])
	if narrative != "" {
		fmt.Fprintf(&b, "\nSummary: %s", narrative)
	}
	writeTurns(&b, "\nRecent:", out[len(out)-keepRecent:])
	return out, b.String()
}

func writeTurns(b *strings.Builder, label string, messages []model.ConversationMessage) {
	if len(messages) == 0 {
		return
	}
	b.WriteString(label)
	for _, m := range messages {
		fmt.Fprintf(b, "\n%s: %s", m.Role, m.Content)
	}
}

func truncateMessage(m model.ConversationMessage, maxChars int) model.ConversationMessage {
	runes := []rune(m.Content)
	if len(runes) <= maxChars {
		return m
	}
	if maxChars == 0 {
		m.Content = ""
		return m
	}
	m.Content = string(runes[:maxChars]) + "..."
	return m
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmails returns the distinct e-mail addresses in text, lowercased, in
// order of first appearance.
func ExtractEmails(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, match := range emailPattern.FindAllString(text, -1) {
		email := model.NormalizeEmail(match)
		if !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out
}

var topicKeywords = map[string][]string{
	"scheduling": {"schedule", "meeting", "call", "book", "calendar"},
	"timing":     {"today", "tomorrow", "monday", "tuesday", "wednesday", "thursday", "friday", "morning", "afternoon", "pm", "am"},
	"attendees":  {"invite", "attendee", "attend", "join", "team"},
	"agenda":     {"agenda", "topic", "discuss", "action item"},
	"location":   {"room", "office", "address", "location", "zoom", "meet"},
}

func narrate(middle []model.ConversationMessage, meeting model.Meeting, detail summaryDetail) string {
	users := 0
	for _, m := range middle {
		if m.Role == model.RoleUser {
			users++
		}
	}
	head := fmt.Sprintf("Summary of %d earlier messages (%d from user, %d from assistant).",
		len(middle), users, len(middle)-users)
	if detail == summaryBrief {
		return head
	}

	var text strings.Builder
	for _, m := range middle {
		text.WriteString(strings.ToLower(m.Content))
		text.WriteByte(' ')
	}
	all := text.String()

	var topics []string
	for topic, words := range topicKeywords {
		for _, w := range words {
			if strings.Contains(all, w) {
				topics = append(topics, topic)
				break
			}
		}
	}
	sort.Strings(topics)

	parts := []string{head}
	if len(topics) > 0 {
		parts = append(parts, "Topics: "+strings.Join(topics, ", ")+".")
	}
	if emails := ExtractEmails(all); len(emails) > 0 {
		parts = append(parts, "Mentioned: "+strings.Join(emails, ", ")+".")
	}
	if desc := describeMeeting(meeting); desc != "none" {
		parts = append(parts, "Meeting so far: "+desc+".")
	}
	return strings.Join(parts, " ")
}

func describeMeeting(m model.Meeting) string {
	var parts []string
	if m.Type != "" {
		parts = append(parts, "type "+string(m.Type))
	}
	if m.Title != "" {
		parts = append(parts, fmt.Sprintf("title %q", m.Title))
	}
	if m.StartTime != nil {
		parts = append(parts, "start "+m.StartTime.Format(time.RFC3339))
	}
	if m.EndTime != nil {
		parts = append(parts, "end "+m.EndTime.Format(time.RFC3339))
	}
	if m.Location != "" {
		parts = append(parts, "location "+m.Location)
	}
	if len(m.Attendees) > 0 {
		parts = append(parts, fmt.Sprintf("%d attendees", len(m.Attendees)))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
