package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDottedTags(t *testing.T) {
	p := New()

	calls := p.Parse(`Let me read that file.
<filesystem.read_file>
  <path>src/main.py</path>
  <offset>50</offset>
  <recursive>true</recursive>
</filesystem.read_file>`)

	require.Len(t, calls, 1)
	assert.Equal(t, "filesystem.read_file", calls[0].Name)
	assert.Equal(t, "src/main.py", calls[0].Args["path"])
	assert.Equal(t, float64(50), calls[0].Args["offset"])
	assert.Equal(t, true, calls[0].Args["recursive"])
}

func TestParseDottedTagsMismatchedClose(t *testing.T) {
	p := New()
	calls := p.Parse(`<srv.op><path>x</path></other.op>`)
	assert.Empty(t, calls)
}

func TestParseFencedJSON(t *testing.T) {
	p := New()

	calls := p.Parse("```json\n{\"name\": \"read_file\", \"arguments\": {\"path\": \"a.txt\"}}\n```")

	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
	assert.Equal(t, "a.txt", calls[0].Args["path"])
}

func TestParseFencedJSONAliases(t *testing.T) {
	p := New()

	for _, payload := range []string{
		`{"function_name": "list_files", "parameters": {"path": "."}}`,
		`{"name": "list_files", "function_args": {"path": "."}}`,
		`{"function": {"name": "list_files", "arguments": {"path": "."}}}`,
		`{"tool_calls": [{"name": "list_files", "arguments": {"path": "."}}]}`,
		`{"tool_request": {"name": "list_files", "arguments": {"path": "."}}}`,
	} {
		calls := p.Parse("```json\n" + payload + "\n```")
		require.Len(t, calls, 1, "payload: %s", payload)
		assert.Equal(t, "list_files", calls[0].Name)
		assert.Equal(t, ".", calls[0].Args["path"])
	}
}

func TestParseFencedJSONArray(t *testing.T) {
	p := New()

	calls := p.Parse("```json\n[{\"name\": \"a_tool\", \"arguments\": {}}, {\"name\": \"b_tool\", \"arguments\": {}}]\n```")

	require.Len(t, calls, 2)
	assert.Equal(t, "a_tool", calls[0].Name)
	assert.Equal(t, "b_tool", calls[1].Name)
}

func TestParseFencedJSONRepaired(t *testing.T) {
	p := New()

	// Trailing comma and single quotes need the repair pass.
	calls := p.Parse("```json\n{'name': 'read_file', 'arguments': {'path': 'a.txt',}}\n```")

	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestParseFencedPython(t *testing.T) {
	p := New()

	calls := p.Parse("Run this:\n```python\nprint('hello')\n```")

	require.Len(t, calls, 1)
	assert.Equal(t, PythonToolName, calls[0].Name)
	assert.Equal(t, "print('hello')", calls[0].Args["code"])
}

func TestParseToolRequestTags(t *testing.T) {
	p := New()

	calls := p.Parse(`<tool_request>{"name": "file_exists", "arguments": {"path": "x"}}</tool_request>`)

	require.Len(t, calls, 1)
	assert.Equal(t, "file_exists", calls[0].Name)
}

func TestParseEmbeddedJSON(t *testing.T) {
	p := New()

	calls := p.Parse(`I will call {"name": "get_file_info", "arguments": {"path": "go.mod"}} now.`)

	require.Len(t, calls, 1)
	assert.Equal(t, "get_file_info", calls[0].Name)
}

func TestParseNoDuplicatesAcrossStrategies(t *testing.T) {
	p := New()

	// The fenced block would also match the embedded-JSON scan; claimed
	// ranges are excised so it must count once.
	calls := p.Parse("```json\n{\"name\": \"read_file\", \"arguments\": {\"path\": \"a\"}}\n```")
	assert.Len(t, calls, 1)

	// Identical calls from genuinely different ranges dedupe too.
	calls = p.Parse(`{"name": "read_file", "arguments": {"path": "a"}} and again {"name": "read_file", "arguments": {"path": "a"}}`)
	assert.Len(t, calls, 1)
}

func TestParseStripsChatTemplateTokens(t *testing.T) {
	p := New()

	calls := p.Parse("<|im_start|>assistant\n{\"name\": \"read_file\", \"arguments\": {\"path\": \"a\"}}<|im_end|>")

	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestParseIdempotent(t *testing.T) {
	p := New()
	text := `First <fs.read><path>a.txt</path></fs.read> then:
` + "```json\n{\"name\": \"list_files\", \"arguments\": {\"path\": \".\"}}\n```" + `
and {"name": "file_exists", "arguments": {"path": "b"}} inline.`

	first := p.Parse(text)
	second := p.Parse(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Args, second[i].Args)
	}
}

func TestParsePlainTextYieldsNothing(t *testing.T) {
	p := New()
	assert.Empty(t, p.Parse("The function {f(x) = x} is not a tool call, nor is this prose."))
	assert.Empty(t, p.Parse(""))
}
