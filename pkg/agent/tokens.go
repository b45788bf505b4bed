package agent

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens estimates the token count of a text. Uses the cl100k_base
// encoding when available; local model tokenizers differ but the estimate
// is close enough for budget trimming. Falls back to runes/4.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return utf8.RuneCountInString(text)/4 + 1
}

// countMessageTokens estimates one message including a small per-message
// framing overhead.
func countMessageTokens(msg *protocol.Message) int {
	total := 4 + CountTokens(msg.Content)
	if msg.Thinking != "" {
		total += CountTokens(msg.Thinking)
	}
	for _, call := range msg.ToolCalls {
		total += CountTokens(call.Name) + 8
	}
	return total
}

// trimToBudget drops the oldest non-system messages until the history fits
// the token budget. The system prompt and the most recent message always
// survive. A budget of zero disables trimming.
func trimToBudget(messages []*protocol.Message, budget int) []*protocol.Message {
	if budget <= 0 || len(messages) <= 2 {
		return messages
	}

	total := 0
	for _, msg := range messages {
		total += countMessageTokens(msg)
	}
	if total <= budget {
		return messages
	}

	trimmed := make([]*protocol.Message, 0, len(messages))
	start := 0
	if messages[0].Role == protocol.RoleSystem {
		trimmed = append(trimmed, messages[0])
		start = 1
	}

	// Walk forward dropping the oldest until the remainder fits.
	for i := start; i < len(messages)-1; i++ {
		if total <= budget {
			trimmed = append(trimmed, messages[i:]...)
			return trimmed
		}
		total -= countMessageTokens(messages[i])
	}
	trimmed = append(trimmed, messages[len(messages)-1])
	return trimmed
}
