package rag

import (
	"fmt"
	"strings"

	"document-qa/internal/models"
)

// BuildContext renders entries as "Source: <file> | Page: <n>" paragraphs in
// the given order, separated by a blank line.
func BuildContext(entries []models.Entry) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf(models.SourceHeader, e.Filename, e.PageNumber) + "\n" + e.Content
	}
	return strings.Join(parts, models.ContextSeparator)
}

// TrimHistory takes newest-first turns, keeps the maxHistory most recent and
// returns them oldest first.
func TrimHistory(turns []models.Turn, maxHistory int) []models.Turn {
	if maxHistory <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) > maxHistory {
		turns = turns[:maxHistory]
	}
	out := make([]models.Turn, len(turns))
	for i, t := range turns {
		out[len(turns)-1-i] = t
	}
	return out
}

func systemPrompt(entries []models.Entry, facts []string) string {
	prompt := fmt.Sprintf(models.SystemPromptTemplate, BuildContext(entries))
	if len(facts) == 0 {
		return prompt
	}
	bullets := make([]string, len(facts))
	for i, f := range facts {
		bullets[i] = "- " + f
	}
	return prompt + fmt.Sprintf(models.MemoryPromptTemplate, strings.Join(bullets, "\n"))
}

// BuildMessages assembles the chat request: the system prompt first, then
// history in chronological order, then the question. history is newest-first
// as returned by the history store.
func BuildMessages(question string, entries []models.Entry, history []models.Turn, facts []string, maxHistory int) []models.Message {
	turns := TrimHistory(history, maxHistory)
	msgs := make([]models.Message, 0, 2+2*len(turns))
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: systemPrompt(entries, facts)})
	for _, t := range turns {
		msgs = append(msgs,
			models.Message{Role: models.RoleUser, Content: t.Question},
			models.Message{Role: models.RoleAssistant, Content: t.Answer},
		)
	}
	return append(msgs, models.Message{Role: models.RoleUser, Content: question})
}
