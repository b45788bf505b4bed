package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

func TestCountTokensScalesWithText(t *testing.T) {
	short := CountTokens("hello")
	long := CountTokens(strings.Repeat("hello world ", 200))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short*10)
}

func TestTrimToBudgetDisabled(t *testing.T) {
	messages := []*protocol.Message{
		protocol.SystemMessage("sys"),
		protocol.UserMessage(strings.Repeat("x ", 5000)),
		protocol.UserMessage("latest"),
	}
	assert.Len(t, trimToBudget(messages, 0), 3)
}

func TestTrimToBudgetUnderBudgetUntouched(t *testing.T) {
	messages := []*protocol.Message{
		protocol.SystemMessage("sys"),
		protocol.UserMessage("a"),
		protocol.UserMessage("b"),
	}
	assert.Equal(t, messages, trimToBudget(messages, 100000))
}

func TestTrimToBudgetDropsOldestFirst(t *testing.T) {
	big := strings.Repeat("lorem ipsum dolor ", 100)
	messages := []*protocol.Message{
		protocol.SystemMessage("sys"),
		protocol.UserMessage(big),
		protocol.AssistantMessage(big, nil),
		protocol.UserMessage(big),
		protocol.UserMessage("the latest question"),
	}

	budget := countMessageTokens(messages[0]) +
		countMessageTokens(messages[3]) +
		countMessageTokens(messages[4]) + 10
	trimmed := trimToBudget(messages, budget)

	require.GreaterOrEqual(t, len(trimmed), 3)
	assert.Equal(t, protocol.RoleSystem, trimmed[0].Role)
	assert.Equal(t, "the latest question", trimmed[len(trimmed)-1].Content)
	assert.Less(t, len(trimmed), len(messages))
}

func TestTrimToBudgetKeepsSystemAndLatestEvenWhenOverBudget(t *testing.T) {
	big := strings.Repeat("word ", 2000)
	messages := []*protocol.Message{
		protocol.SystemMessage(big),
		protocol.UserMessage(big),
		protocol.UserMessage(big),
	}

	trimmed := trimToBudget(messages, 5)
	require.Len(t, trimmed, 2)
	assert.Equal(t, protocol.RoleSystem, trimmed[0].Role)
	assert.Equal(t, messages[2], trimmed[1])
}
