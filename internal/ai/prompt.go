package ai

import (
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMaxHistory caps the conversation turns sent to a runtime.
const DefaultMaxHistory = 50

const analystPersona = `You are a Senior Marketing Operations analyst helping analyze marketing campaign and pipeline data. You have access to a complete data summary below. Answer questions with specific numbers from the data. Be direct, quantitative, and actionable.

When recommending actions, structure them as:
- WHAT'S HAPPENING (cite the specific data)
- WHY IT MATTERS (business impact)
- WHAT TO DO (specific, implementable steps)
- HOW TO MEASURE (KPIs and targets)

Use the data to support every claim. Format responses with clear sections and bullet points.

`

// BuildSystemPrompt prefixes the data context with the analyst instructions.
func BuildSystemPrompt(dataContext string) string {
	return analystPersona + dataContext
}

// TrimHistory keeps the newest max messages. max <= 0 uses DefaultMaxHistory.
func TrimHistory(msgs []Message, max int) []Message {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	if len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}

// ValidateHistory checks a client-supplied conversation: only user and
// assistant turns, non-empty, ending with a user question.
func ValidateHistory(msgs []Message) error {
	if len(msgs) == 0 {
		return eris.New("messages cannot be empty")
	}
	for i, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return eris.Errorf("message %d: unsupported role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return eris.Errorf("message %d: empty content", i)
		}
	}
	if msgs[len(msgs)-1].Role != RoleUser {
		return eris.New("last message must be from the user")
	}
	return nil
}

// ChatRequest builds a request with the system prompt first and the trimmed
// conversation after it.
func ChatRequest(model, dataContext string, history []Message, maxHistory, maxTokens int, temperature float64) GenerateRequest {
	history = TrimHistory(history, maxHistory)
	msgs := make([]Message, 0, len(history)+1)
	msgs = append(msgs, Message{Role: RoleSystem, Content: BuildSystemPrompt(dataContext)})
	msgs = append(msgs, history...)
	return GenerateRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}
