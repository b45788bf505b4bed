package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/httpclient"
)

// sseResponseTimeout bounds the wait for a complete JSON-RPC message on an
// event stream. Long-running tools need generous room.
const sseResponseTimeout = 5 * time.Minute

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// httpSession talks JSON-RPC over HTTP for the sse and streamable_http
// transports. Responses may arrive as plain JSON or as an SSE stream; both
// are handled uniformly. Correlation is by request id.
type httpSession struct {
	server     string
	url        string
	headers    map[string]string
	httpClient *httpclient.Client
	requestID  atomic.Int64

	sessionMu sync.RWMutex
	sessionID string

	closed atomic.Bool
}

func newHTTPSession(ctx context.Context, cfg ServerConfig) (*httpSession, error) {
	s := &httpSession{
		server:  cfg.Name,
		url:     cfg.URL,
		headers: NormalizeHeaders(cfg.Headers),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: sseResponseTimeout}),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}

	resp, err := s.call(ctx, "initialize", map[string]any{
		"protocolVersion": ProtocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, newProtocolError(cfg.Name, "initialize", resp.Error.Message)
	}

	slog.Info("Connected to MCP server (HTTP)",
		"server", cfg.Name,
		"url", cfg.URL,
		"transport", cfg.Transport,
	)
	return s, nil
}

func (s *httpSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	resp, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, newProtocolError(s.server, "tools/list", resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, newProtocolError(s.server, "tools/list", "unexpected result shape")
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, newProtocolError(s.server, "tools/list", "missing tools array")
	}

	var descriptors []ToolDescriptor
	for _, raw := range toolsList {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := toolMap["description"].(string)
		schema, _ := toolMap["inputSchema"].(map[string]any)
		descriptors = append(descriptors, ToolDescriptor{
			Name:        name,
			Description: desc,
			InputSchema: schema,
		})
	}
	return descriptors, nil
}

func (s *httpSession) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	resp, err := s.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", newToolError(s.server, name, resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return "", newProtocolError(s.server, name, "unexpected result shape")
	}

	content := collectTextParts(resultMap)
	if isError, _ := resultMap["isError"].(bool); isError {
		if content == "" {
			content = "unknown tool error"
		}
		return "", newToolError(s.server, name, content)
	}
	return content, nil
}

func (s *httpSession) Close() error {
	s.closed.Store(true)
	return nil
}

// call sends one JSON-RPC request and reads the correlated response.
func (s *httpSession) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	if s.closed.Load() {
		return nil, newTransportError(s.server, method, fmt.Errorf("session closed"))
	}

	id := s.requestID.Add(1)
	request := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, newProtocolError(s.server, method, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, newTransportError(s.server, method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	applyHeaders(httpReq, s.headers)

	s.sessionMu.RLock()
	if s.sessionID != "" {
		httpReq.Header.Set("mcp-session-id", s.sessionID)
	}
	s.sessionMu.RUnlock()

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newTransportError(s.server, method, err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(httpResp.Body)
		return nil, newTransportError(s.server, method,
			fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var resp *jsonRPCResponse
	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		resp, err = s.readSSEResponse(ctx, httpResp.Body, id)
	} else {
		resp, err = s.readJSONResponse(httpResp.Body)
	}
	if err != nil {
		return nil, err
	}
	if resp.ID != 0 && resp.ID != id {
		return nil, newProtocolError(s.server, method,
			fmt.Sprintf("response id %d does not match request id %d", resp.ID, id))
	}
	return resp, nil
}

func (s *httpSession) readJSONResponse(body io.Reader) (*jsonRPCResponse, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, newTransportError(s.server, "", err)
	}
	var resp jsonRPCResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, newProtocolError(s.server, "", "malformed JSON-RPC response: "+err.Error())
	}
	return &resp, nil
}

// readSSEResponse reads events until a complete JSON-RPC message with the
// expected id arrives. Events with other ids (server notifications) are
// skipped.
func (s *httpSession) readSSEResponse(ctx context.Context, body io.Reader, wantID int64) (*jsonRPCResponse, error) {
	type result struct {
		response *jsonRPCResponse
		err      error
	}
	resultCh := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(body)
		var data strings.Builder

		flush := func() *jsonRPCResponse {
			if data.Len() == 0 {
				return nil
			}
			payload := data.String()
			data.Reset()
			var resp jsonRPCResponse
			if err := json.Unmarshal([]byte(payload), &resp); err != nil {
				return nil
			}
			if resp.ID != 0 && resp.ID != wantID {
				return nil
			}
			return &resp
		}

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if resp := flush(); resp != nil {
					resultCh <- result{response: resp}
					return
				}
				if err == io.EOF {
					resultCh <- result{err: newProtocolError(s.server, "", "SSE stream ended without a complete message")}
				} else {
					resultCh <- result{err: newTransportError(s.server, "", err)}
				}
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				if resp := flush(); resp != nil {
					resultCh <- result{response: resp}
					return
				}
				continue
			}
			if strings.HasPrefix(line, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
	}()

	select {
	case res := <-resultCh:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(sseResponseTimeout):
		return nil, newTransportError(s.server, "", fmt.Errorf("timeout reading SSE response after %v", sseResponseTimeout))
	}
}

func collectTextParts(resultMap map[string]any) string {
	content, ok := resultMap["content"].([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range content {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if itemMap["type"] != nil && itemMap["type"] != "text" {
			continue
		}
		if text, ok := itemMap["text"].(string); ok {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Session = (*httpSession)(nil)
