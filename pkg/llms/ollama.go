package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/httpclient"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/observability"
	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaProvider implements Provider against an Ollama /api/chat endpoint.
type OllamaProvider struct {
	baseURL    string
	httpClient *httpclient.Client
}

// NewOllamaProvider creates a provider for the given host URL.
// An empty host selects the local default.
func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = defaultOllamaHost
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(host, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 10 * time.Minute}),
			httpclient.WithMaxRetries(2),
		),
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Think    bool            `json:"think,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Thinking  string           `json:"thinking,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaToolCallFunction `json:"function"`
}

type ollamaToolCallFunction struct {
	Index     int            `json:"index,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaStreamChunk struct {
	Model              string        `json:"model"`
	Message            ollamaMessage `json:"message"`
	Done               bool          `json:"done"`
	TotalDuration      int64         `json:"total_duration"`
	LoadDuration       int64         `json:"load_duration"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	PromptEvalDuration int64         `json:"prompt_eval_duration"`
	EvalCount          int           `json:"eval_count"`
	EvalDuration       int64         `json:"eval_duration"`
	Error              string        `json:"error,omitempty"`
}

// ChatStream implements Provider.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	request := p.buildRequest(req)

	outputCh := make(chan StreamChunk, 64)

	go func() {
		defer close(outputCh)

		tracer := observability.GetTracer("runtime.llm")
		ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
			trace.WithAttributes(
				attribute.String(observability.AttrLLMModel, req.Model),
				attribute.String("provider", "ollama"),
				attribute.Bool("streaming", true),
			),
		)
		defer span.End()

		if err := p.stream(ctx, request, outputCh, span); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if metrics := observability.GetMetrics(); metrics != nil {
				metrics.LLMRequests.WithLabelValues(req.Model, "error").Inc()
			}
			select {
			case outputCh <- StreamChunk{Kind: ChunkError, Err: err}:
			case <-ctx.Done():
			}
			return
		}
		span.SetStatus(codes.Ok, "success")
		if metrics := observability.GetMetrics(); metrics != nil {
			metrics.LLMRequests.WithLabelValues(req.Model, "ok").Inc()
		}
	}()

	return outputCh, nil
}

// SupportsThinking reports whether a model name matches a known
// thinking-capable family. Coder variants are excluded.
func (p *OllamaProvider) SupportsThinking(model string) bool {
	lower := strings.ToLower(model)
	excluded := []string{"qwen3-coder", "qwen2-coder"}
	for _, e := range excluded {
		if strings.Contains(lower, e) {
			return false
		}
	}
	capable := []string{"qwen3", "deepseek-r1", "deepseek-v3", "gpt-oss"}
	for _, c := range capable {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// Close implements Provider.
func (p *OllamaProvider) Close() error {
	return nil
}

func (p *OllamaProvider) buildRequest(req ChatRequest) ollamaRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		om := ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == protocol.RoleTool {
			// Ollama correlates tool results by tool name.
			om.ToolName = msg.ToolName
		}
		if len(msg.ToolCalls) > 0 {
			om.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				om.ToolCalls[i] = ollamaToolCall{
					Function: ollamaToolCallFunction{Index: i, Name: tc.Name, Arguments: args},
				}
			}
		}
		messages = append(messages, om)
	}

	request := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
		Think:    req.Think,
	}

	opts := req.Options
	if opts.Temperature > 0 || opts.TopP > 0 || opts.MaxTokens > 0 || len(opts.Stop) > 0 {
		request.Options = &ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.Stop,
		}
	}

	if len(req.Tools) > 0 {
		request.Tools = make([]ollamaTool, len(req.Tools))
		for i, t := range req.Tools {
			request.Tools[i] = ollamaTool{
				Type: "function",
				Function: ollamaToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
	}

	return request
}

func (p *OllamaProvider) stream(ctx context.Context, request ollamaRequest, outputCh chan<- StreamChunk, span trace.Span) error {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if resp != nil {
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			var errorJSON struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(bodyBytes, &errorJSON) == nil && errorJSON.Error != "" {
				return fmt.Errorf("ollama API error: %s", errorJSON.Error)
			}
			return fmt.Errorf("ollama API request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
		}
	}
	if err != nil {
		return fmt.Errorf("streaming request: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("streaming request: no response received")
	}

	reader := bufio.NewReader(resp.Body)
	// Tool calls arrive incrementally; accumulate by index and emit on done.
	toolCallsByIndex := make(map[int]*ollamaToolCall)

	// Sends must not outlive the consumer: Collect stops reading on
	// cancellation, and a full buffer would then block this goroutine
	// forever.
	send := func(chunk StreamChunk) bool {
		select {
		case outputCh <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var chunk ollamaStreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}

		if chunk.Error != "" {
			return fmt.Errorf("ollama API error: %s", chunk.Error)
		}

		if chunk.Message.Thinking != "" {
			if !send(StreamChunk{Kind: ChunkThinking, Text: chunk.Message.Thinking}) {
				return ctx.Err()
			}
		}
		if chunk.Message.Content != "" {
			if !send(StreamChunk{Kind: ChunkText, Text: chunk.Message.Content}) {
				return ctx.Err()
			}
		}

		for _, tc := range chunk.Message.ToolCalls {
			idx := tc.Function.Index
			if idx < 0 {
				idx = len(toolCallsByIndex)
			}
			if existing, ok := toolCallsByIndex[idx]; ok {
				for k, v := range tc.Function.Arguments {
					existing.Function.Arguments[k] = v
				}
			} else {
				copied := tc
				if copied.Function.Arguments == nil {
					copied.Function.Arguments = map[string]any{}
				}
				toolCallsByIndex[idx] = &copied
			}
		}

		if chunk.Done {
			for i := 0; i < len(toolCallsByIndex); i++ {
				tc, ok := toolCallsByIndex[i]
				if !ok {
					continue
				}
				if !send(StreamChunk{Kind: ChunkToolCall, ToolCall: &protocol.ToolCall{
					ID:   protocol.NewToolCallID(tc.Function.Name),
					Name: tc.Function.Name,
					Args: tc.Function.Arguments,
				}}) {
					return ctx.Err()
				}
			}

			metrics := &protocol.Metrics{
				PromptEvalCount:    chunk.PromptEvalCount,
				EvalCount:          chunk.EvalCount,
				TotalDuration:      time.Duration(chunk.TotalDuration),
				LoadDuration:       time.Duration(chunk.LoadDuration),
				PromptEvalDuration: time.Duration(chunk.PromptEvalDuration),
				EvalDuration:       time.Duration(chunk.EvalDuration),
			}

			span.SetAttributes(
				attribute.Int(observability.AttrLLMTokensInput, chunk.PromptEvalCount),
				attribute.Int(observability.AttrLLMTokensOutput, chunk.EvalCount),
			)
			if m := observability.GetMetrics(); m != nil {
				m.LLMTokens.WithLabelValues(request.Model, "input").Add(float64(chunk.PromptEvalCount))
				m.LLMTokens.WithLabelValues(request.Model, "output").Add(float64(chunk.EvalCount))
			}

			if !send(StreamChunk{Kind: ChunkDone, Metrics: metrics}) {
				return ctx.Err()
			}
			return nil
		}
	}
}

var _ Provider = (*OllamaProvider)(nil)
