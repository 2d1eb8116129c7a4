package agenda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/llm"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

// ErrInvalidAgenda is returned when the model's answer cannot be used.
var ErrInvalidAgenda = errors.New("invalid agenda")

const (
	systemPrompt = "You write concise meeting agendas. Respond with a single JSON object and no other text."

	// promptMessages is how many recent conversation turns go into the prompt.
	promptMessages = 10
)

// Generator drafts agendas with a language model.
type Generator struct {
	client llm.Client
	log    *logger.Logger
}

// NewGenerator creates a generator. A nil client makes every call return the
// template agenda.
func NewGenerator(client llm.Client, log *logger.Logger) *Generator {
	return &Generator{client: client, log: log.Named("agenda")}
}

type agendaJSON struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Topics          []struct {
		Title           string `json:"title"`
		DurationMinutes int    `json:"duration_minutes"`
		Description     string `json:"description"`
	} `json:"topics"`
	ActionItems []string `json:"action_items"`
}

// GenerateAgenda drafts an agenda for m from the conversation so far.
func (g *Generator) GenerateAgenda(ctx context.Context, m model.Meeting, messages []model.ConversationMessage) (model.Agenda, error) {
	if g.client == nil {
		return Template(m), nil
	}

	resp, err := g.client.Complete(ctx, llm.UserPrompt(systemPrompt, buildPrompt(m, messages), 800))
	if err != nil {
		return model.Agenda{}, fmt.Errorf("generate agenda: %w", err)
	}

	a, err := Parse(resp.Content)
	if err != nil {
		g.log.Warn("model returned unusable agenda", zap.Error(err), zap.Int("length", len(resp.Content)))
		return model.Agenda{}, err
	}
	if a.DurationMinutes <= 0 {
		a.DurationMinutes = int(m.Duration().Minutes())
	}
	return a, nil
}

// FormatAgenda renders a for display.
func (g *Generator) FormatAgenda(a model.Agenda) string {
	return FormatAgenda(a)
}

// Parse extracts an agenda from a model answer. The JSON object may be
// wrapped in prose or a code fence.
func Parse(content string) (model.Agenda, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return model.Agenda{}, fmt.Errorf("%w: no JSON object", ErrInvalidAgenda)
	}

	var raw agendaJSON
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return model.Agenda{}, fmt.Errorf("%w: %v", ErrInvalidAgenda, err)
	}
	if strings.TrimSpace(raw.Title) == "" {
		return model.Agenda{}, fmt.Errorf("%w: missing title", ErrInvalidAgenda)
	}
	if len(raw.Topics) == 0 {
		return model.Agenda{}, fmt.Errorf("%w: no topics", ErrInvalidAgenda)
	}

	a := model.Agenda{
		Title:           strings.TrimSpace(raw.Title),
		DurationMinutes: raw.DurationMinutes,
		ActionItems:     raw.ActionItems,
		Source:          model.AgendaSourceAI,
	}
	for _, t := range raw.Topics {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		a.Topics = append(a.Topics, model.AgendaTopic{
			Title:           strings.TrimSpace(t.Title),
			DurationMinutes: t.DurationMinutes,
			Description:     t.Description,
		})
	}
	if len(a.Topics) == 0 {
		return model.Agenda{}, fmt.Errorf("%w: no titled topics", ErrInvalidAgenda)
	}
	return a, nil
}

func buildPrompt(m model.Meeting, messages []model.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("Draft an agenda for this meeting.\n")
	fmt.Fprintf(&b, "Title: %s\n", m.Title)
	fmt.Fprintf(&b, "Type: %s\n", m.Type)
	if m.StartTime != nil {
		fmt.Fprintf(&b, "Start: %s\n", m.StartTime.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Duration: %d minutes\n", int(m.Duration().Minutes()))
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	if len(m.Attendees) > 0 {
		emails := make([]string, len(m.Attendees))
		for i, a := range m.Attendees {
			emails[i] = a.Email
		}
		fmt.Fprintf(&b, "Attendees: %s\n", strings.Join(emails, ", "))
	}

	if len(messages) > promptMessages {
		messages = messages[len(messages)-promptMessages:]
	}
	if len(messages) > 0 {
		b.WriteString("\nConversation:\n")
		for _, msg := range messages {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
	}

	b.WriteString(`
Respond as {"title": string, "duration_minutes": int, "topics": [{"title": string, "duration_minutes": int, "description": string}], "action_items": [string]}.`)
	return b.String()
}
