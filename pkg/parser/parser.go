// Package parser extracts tool invocations from free-form model text. It is
// the fallback path for models that do not emit structured tool-call events:
// the agent executor hands it the accumulated answer text and uses whatever
// it finds in place of that text.
//
// Four strategies run in fixed order, most specific first:
//
//  1. dotted-tag XML:   <server.op><arg>value</arg></server.op>
//  2. fenced JSON:      ```json {...} ``` (several accepted shapes)
//  3. fenced python:    ```python ... ``` becomes execute_python_code
//  4. generic XML:      <tool_request>{json}</tool_request>
//
// Text ranges claimed by an earlier strategy are excised before later ones
// run, so a call is never reported twice. Parsing is deterministic: the same
// input always yields the same calls with the same ids.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

// PythonToolName is the built-in tool fenced python blocks are routed to.
const PythonToolName = "execute_python_code"

var (
	chatTemplateTokens = []string{"<|im_start|>", "<|im_end|>"}

	dottedTagRe  = regexp.MustCompile(`(?s)<([a-zA-Z_][\w-]*\.[\w.-]+)>(.*?)</([a-zA-Z_][\w-]*\.[\w.-]+)>`)
	childElemRe  = regexp.MustCompile(`(?s)<([a-zA-Z_][\w-]*)>(.*?)</([a-zA-Z_][\w-]*)>`)
	fencedRe     = regexp.MustCompile("(?s)```([a-zA-Z_]*)[ \t]*\n(.*?)```")
	toolReqTagRe = regexp.MustCompile(`(?s)<tool_request>(.*?)</tool_request>`)
	toolNameRe   = regexp.MustCompile(`^[a-zA-Z][\w.-]*$`)
)

// Parser is the single entry point over the four sub-strategies.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

// Parse extracts tool calls from text. Returns nil when none are found.
func (p *Parser) Parse(text string) []*protocol.ToolCall {
	for _, token := range chatTemplateTokens {
		text = strings.ReplaceAll(text, token, "")
	}

	var calls []*protocol.ToolCall
	seen := make(map[string]bool)

	add := func(name string, args map[string]any) {
		if !toolNameRe.MatchString(name) {
			return
		}
		if args == nil {
			args = map[string]any{}
		}
		key := dedupKey(name, args)
		if seen[key] {
			return
		}
		seen[key] = true
		calls = append(calls, &protocol.ToolCall{
			ID:   fmt.Sprintf("call_%d", len(calls)),
			Name: name,
			Args: args,
		})
	}

	text = p.parseDottedTags(text, add)
	text = p.parseFencedBlocks(text, add)
	text = p.parseToolRequestTags(text, add)
	p.parseEmbeddedJSON(text, add)

	return calls
}

// parseDottedTags handles <server.op>...</server.op> blocks. The tag name
// must contain a dot; argument child elements are interpreted as JSON when
// valid, otherwise by lexical form. Matched ranges are excised from the
// returned text so later strategies do not re-scan them.
func (p *Parser) parseDottedTags(text string, add func(string, map[string]any)) string {
	matches := dottedTagRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		open := text[m[2]:m[3]]
		close := text[m[6]:m[7]]
		if open != close {
			continue
		}
		body := text[m[4]:m[5]]

		args := map[string]any{}
		for _, child := range childElemRe.FindAllStringSubmatch(body, -1) {
			if child[1] != child[3] {
				continue
			}
			args[child[1]] = coerceValue(strings.TrimSpace(child[2]))
		}
		add(open, args)

		out.WriteString(text[last:m[0]])
		last = m[1]
	}
	out.WriteString(text[last:])
	return out.String()
}

// parseFencedBlocks handles ```json and ```python fences. JSON blocks accept
// a single object, an array, or an object wrapping a tool_calls array;
// malformed JSON gets one repair pass before being skipped. Python blocks
// become execute_python_code calls. Consumed fences are excised.
func (p *Parser) parseFencedBlocks(text string, add func(string, map[string]any)) string {
	matches := fencedRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		lang := strings.ToLower(text[m[2]:m[3]])
		body := strings.TrimSpace(text[m[4]:m[5]])
		consumed := false

		switch lang {
		case "json":
			consumed = p.parseJSONPayload(body, add)
		case "python":
			if body != "" {
				add(PythonToolName, map[string]any{"code": body})
				consumed = true
			}
		}

		if consumed {
			out.WriteString(text[last:m[0]])
			last = m[1]
		}
	}
	out.WriteString(text[last:])
	return out.String()
}

// parseToolRequestTags handles <tool_request>{json}</tool_request> blocks.
// Matched ranges are excised from the returned text.
func (p *Parser) parseToolRequestTags(text string, add func(string, map[string]any)) string {
	matches := toolReqTagRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var out strings.Builder
	last := 0
	for _, m := range matches {
		if p.parseJSONPayload(strings.TrimSpace(text[m[2]:m[3]]), add) {
			out.WriteString(text[last:m[0]])
			last = m[1]
		}
	}
	out.WriteString(text[last:])
	return out.String()
}

// parseEmbeddedJSON scans the remaining text for bare JSON objects that look
// like tool calls. It walks every brace opening, tracks balance (respecting
// strings and escapes), and skips forward past each accepted candidate so a
// range is claimed at most once.
func (p *Parser) parseEmbeddedJSON(text string, add func(string, map[string]any)) {
	i := 0
	for i < len(text) {
		if text[i] != '{' {
			i++
			continue
		}
		end, ok := matchBraces(text, i)
		if !ok {
			i++
			continue
		}
		candidate := text[i : end+1]

		var decoded map[string]any
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			if p.collectCalls(decoded, add) {
				i = end + 1
				continue
			}
		}
		i++
	}
}

// matchBraces returns the index of the brace closing the one at start.
func matchBraces(text string, start int) (int, bool) {
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// parseJSONPayload decodes one JSON payload into zero or more calls.
// Reports whether anything was recognized.
func (p *Parser) parseJSONPayload(body string, add func(string, map[string]any)) bool {
	if body == "" {
		return false
	}

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return false
		}
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return false
		}
	}

	return p.collectCalls(decoded, add)
}

func (p *Parser) collectCalls(decoded any, add func(string, map[string]any)) bool {
	switch v := decoded.(type) {
	case []any:
		found := false
		for _, item := range v {
			if p.collectCalls(item, add) {
				found = true
			}
		}
		return found
	case map[string]any:
		if wrapped, ok := v["tool_calls"].([]any); ok {
			return p.collectCalls(wrapped, add)
		}
		if wrapped, ok := v["tool_request"].(map[string]any); ok {
			return p.collectCalls(wrapped, add)
		}
		if name, args, ok := extractCall(v); ok {
			add(name, args)
			return true
		}
		return false
	default:
		return false
	}
}

// extractCall recognizes the accepted aliases for a single call object:
// name under "name" or "function_name" (possibly nested under "function"),
// args under "arguments", "parameters" or "function_args".
func extractCall(obj map[string]any) (string, map[string]any, bool) {
	if fn, ok := obj["function"].(map[string]any); ok {
		if name, args, found := extractCall(fn); found {
			return name, args, true
		}
	}

	var name string
	for _, key := range []string{"name", "function_name"} {
		if s, ok := obj[key].(string); ok && s != "" {
			name = s
			break
		}
	}
	if name == "" {
		return "", nil, false
	}

	for _, key := range []string{"arguments", "parameters", "function_args"} {
		switch v := obj[key].(type) {
		case map[string]any:
			return name, v, true
		case string:
			// Arguments sometimes arrive as an embedded JSON string.
			var args map[string]any
			if err := json.Unmarshal([]byte(v), &args); err == nil {
				return name, args, true
			}
			repaired, err := jsonrepair.JSONRepair(v)
			if err == nil {
				if err := json.Unmarshal([]byte(repaired), &args); err == nil {
					return name, args, true
				}
			}
		}
	}

	return name, map[string]any{}, true
}

// coerceValue interprets an XML argument value: JSON when valid, otherwise
// boolean, number or plain string by lexical form.
func coerceValue(raw string) any {
	if raw == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		return decoded
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return float64(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func dedupKey(name string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return name
	}
	return name + "|" + string(data)
}
