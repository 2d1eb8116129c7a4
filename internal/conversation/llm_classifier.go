package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/meeting-assistant/internal/llm"
	"github.com/capitalize-ai/meeting-assistant/internal/model"
	"github.com/capitalize-ai/meeting-assistant/pkg/logger"
)

const classifierSystem = "You label messages for a meeting scheduling assistant. Answer with a single lowercase word and nothing else."

// LLMClassifier asks a language model and falls back to keywords when the
// model fails or answers outside the allowed labels.
type LLMClassifier struct {
	client   llm.Client
	fallback *KeywordClassifier
	log      *logger.Logger
}

// NewLLMClassifier creates a model-backed classifier.
func NewLLMClassifier(client llm.Client, log *logger.Logger) *LLMClassifier {
	return &LLMClassifier{
		client:   client,
		fallback: NewKeywordClassifier(),
		log:      log.Named("classifier"),
	}
}

// ClassifyMode implements Classifier.
func (c *LLMClassifier) ClassifyMode(ctx context.Context, current model.Mode, text string) (model.Mode, error) {
	prompt := fmt.Sprintf("Current mode: %s\nMessage: %q\n\n"+
		"Reply casual, scheduling or approval. Move from casual to scheduling only when the user asks to plan a meeting. "+
		"Move from scheduling to approval only when the user confirms the proposal.", current, text)

	answer, err := c.ask(ctx, prompt)
	if err == nil {
		switch mode := model.Mode(answer); mode {
		case model.ModeCasual, model.ModeScheduling, model.ModeApproval:
			return mode, nil
		}
	}
	c.log.Debug("mode classification fell back to keywords", zap.String("answer", answer), zap.Error(err))
	return c.fallback.ClassifyMode(ctx, current, text)
}

// ClassifyMeetingType implements Classifier.
func (c *LLMClassifier) ClassifyMeetingType(ctx context.Context, text string) (model.MeetingType, error) {
	prompt := fmt.Sprintf("Message: %q\n\nReply online if the user wants a virtual meeting, physical if in person, unknown otherwise.", text)

	answer, err := c.ask(ctx, prompt)
	if err == nil {
		switch answer {
		case string(model.MeetingTypeOnline), string(model.MeetingTypePhysical):
			return model.MeetingType(answer), nil
		case "unknown":
			return "", nil
		}
	}
	c.log.Debug("type classification fell back to keywords", zap.String("answer", answer), zap.Error(err))
	return c.fallback.ClassifyMeetingType(ctx, text)
}

func (c *LLMClassifier) ask(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Complete(ctx, llm.UserPrompt(classifierSystem, prompt, 8))
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.ToLower(strings.TrimSpace(resp.Content)), ".\"'"), nil
}
