package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// Classifier infers conversational intent from user text.
type Classifier interface {
	// ClassifyMode returns the mode the conversation should move to given
	// the current mode and the latest user text.
	ClassifyMode(ctx context.Context, current model.Mode, text string) (model.Mode, error)
	// ClassifyMeetingType returns the meeting type the text asks for, or ""
	// when it is ambiguous.
	ClassifyMeetingType(ctx context.Context, text string) (model.MeetingType, error)
}

var (
	schedulingPhrases = []string{
		"schedule", "set up a meeting", "book a meeting", "arrange", "meeting with",
		"plan a meeting", "create a meeting", "set up a call", "book a call",
		"calendar invite", "find a time",
	}
	confirmationPhrases = []string{
		"looks good", "confirm", "approve", "sounds good", "go ahead",
		"that works", "create it", "finalize",
	}
	onlineWords = []string{
		"online", "virtual", "video call", "zoom", "google meet", "teams",
		"remote", "video", "call",
	}
	physicalWords = []string{
		"in person", "in-person", "physical", "office", "meeting room",
		"conference room", "face to face", "on site", "onsite",
	}
)

// KeywordClassifier matches whole-word phrases. It is deterministic and never
// returns an error.
type KeywordClassifier struct {
	scheduling   []*regexp.Regexp
	confirmation []*regexp.Regexp
	online       []*regexp.Regexp
	physical     []*regexp.Regexp
}

// NewKeywordClassifier creates a classifier with the built-in vocabulary.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		scheduling:   compileWords(schedulingPhrases),
		confirmation: compileWords(confirmationPhrases),
		online:       compileWords(onlineWords),
		physical:     compileWords(physicalWords),
	}
}

func compileWords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`)
	}
	return out
}

func hits(patterns []*regexp.Regexp, text string) int {
	n := 0
	for _, p := range patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

// ClassifyMode implements Classifier.
func (k *KeywordClassifier) ClassifyMode(_ context.Context, current model.Mode, text string) (model.Mode, error) {
	text = strings.TrimSpace(text)
	switch current {
	case model.ModeCasual, "":
		if hits(k.scheduling, text) > 0 {
			return model.ModeScheduling, nil
		}
	case model.ModeScheduling:
		if hits(k.confirmation, text) > 0 {
			return model.ModeApproval, nil
		}
	}
	return current, nil
}

// ClassifyMeetingType implements Classifier.
func (k *KeywordClassifier) ClassifyMeetingType(_ context.Context, text string) (model.MeetingType, error) {
	online, physical := hits(k.online, text), hits(k.physical, text)
	switch {
	case online > physical:
		return model.MeetingTypeOnline, nil
	case physical > online:
		return model.MeetingTypePhysical, nil
	default:
		return "", nil
	}
}
