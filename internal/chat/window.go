package chat

import (
	"github.com/youruser/chatcore/internal/api"
)

// DefaultWindowSize is the maximum number of prior turns sent as
// conversation context with a new request.
const DefaultWindowSize = 15

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// buildWindow derives the bounded context window from a session's message
// list: the last size eligible messages, oldest first. Messages with empty
// text, an error flag, or a still-open stream are excluded. When
// tokenBudget is positive the window is further trimmed oldest-first so
// the total estimated token count stays within budget. The window is
// recomputed fresh on every send, never cached.
func buildWindow(messages []Message, size, tokenBudget int) []api.ContextMessage {
	if size <= 0 {
		size = DefaultWindowSize
	}

	eligible := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Text == "" || msg.IsError || msg.IsStreaming {
			continue
		}
		eligible = append(eligible, msg)
	}

	if len(eligible) > size {
		eligible = eligible[len(eligible)-size:]
	}

	if tokenBudget > 0 {
		eligible = trimToBudget(eligible, tokenBudget)
	}

	window := make([]api.ContextMessage, 0, len(eligible))
	for _, msg := range eligible {
		role := roleUser
		if msg.Sender == SenderAI {
			role = roleAssistant
		}
		window = append(window, api.ContextMessage{Role: role, Content: msg.Text})
	}
	return window
}

// trimToBudget drops the oldest messages until the estimated token total
// fits the budget. The newest message is always kept, even when it alone
// exceeds the budget.
func trimToBudget(messages []Message, budget int) []Message {
	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := estimateTokens(messages[i].Text)
		if total+cost > budget && start < len(messages) {
			break
		}
		total += cost
		start = i
	}
	return messages[start:]
}
