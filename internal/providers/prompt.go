package providers

import (
	"strings"

	"llmhub/internal/domain"
)

// FoldHistory renders earlier turns and the new prompt into the single
// prompt string accepted by one-shot CLIs.
func FoldHistory(history []domain.Message, prompt string) string {
	if len(history) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n\n")
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("User: ")
		case domain.RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("User: ")
	b.WriteString(prompt)
	return b.String()
}
