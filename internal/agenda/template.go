// Package agenda drafts meeting agendas, with a language model when one is
// configured and from a fixed template otherwise.
package agenda

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

const defaultDurationMinutes = 30

// Template builds the four-part agenda used when no model is available or
// the model's answer is unusable. Section lengths scale with the meeting.
func Template(m model.Meeting) model.Agenda {
	total := int(m.Duration().Minutes())
	if total <= 0 {
		total = defaultDurationMinutes
	}

	welcome := max(2, total*10/100)
	actions := max(3, total*15/100)
	wrapUp := max(2, total*5/100)
	main := total - welcome - actions - wrapUp
	if main < 1 {
		welcome, actions, wrapUp = 1, 1, 1
		main = max(1, total-3)
	}

	title := m.Title
	if title == "" {
		title = "Meeting"
	}
	discussion := "Discuss the main topics"
	if m.Description != "" {
		discussion = m.Description
	}

	return model.Agenda{
		Title:           title,
		DurationMinutes: total,
		Topics: []model.AgendaTopic{
			{Title: "Welcome and introductions", DurationMinutes: welcome},
			{Title: "Main discussion", DurationMinutes: main, Description: discussion},
			{Title: "Action items", DurationMinutes: actions, Description: "Agree on owners and due dates"},
			{Title: "Wrap-up", DurationMinutes: wrapUp},
		},
		ActionItems: []string{"Share notes with attendees"},
		Source:      model.AgendaSourceTemplate,
	}
}

// FormatAgenda renders a as plain text for display.
func FormatAgenda(a model.Agenda) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d min)\n", a.Title, a.DurationMinutes)
	for i, t := range a.Topics {
		fmt.Fprintf(&b, "%d. %s - %d min", i+1, t.Title, t.DurationMinutes)
		if t.Description != "" {
			fmt.Fprintf(&b, ": %s", t.Description)
		}
		b.WriteByte('\n')
	}
	if len(a.ActionItems) > 0 {
		b.WriteString("Action items:\n")
		for _, item := range a.ActionItems {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
