package llms

import (
	"context"
	"strings"

	"github.com/schwab/mcp-client-for-ollama-sub001/pkg/protocol"
)

// UICallback receives incremental output for display. It is invoked from the
// collecting goroutine; implementations must not block.
type UICallback func(kind ChunkKind, text string)

// StreamResult is the synchronous outcome of one consumed stream.
type StreamResult struct {
	Text      string
	Thinking  string
	ToolCalls []*protocol.ToolCall
	Metrics   *protocol.Metrics
}

// Collect consumes a chunk stream to completion, accumulating the three
// event streams separately. Incremental text is forwarded to the callback as
// it arrives; the full accumulated strings are returned at stream close so
// the caller can run a final rendering pass.
func Collect(ctx context.Context, ch <-chan StreamChunk, callback UICallback) (*StreamResult, error) {
	var (
		text     strings.Builder
		thinking strings.Builder
		calls    []*protocol.ToolCall
		metrics  *protocol.Metrics
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				return &StreamResult{
					Text:      text.String(),
					Thinking:  thinking.String(),
					ToolCalls: calls,
					Metrics:   metrics,
				}, nil
			}

			switch chunk.Kind {
			case ChunkText:
				text.WriteString(chunk.Text)
				if callback != nil {
					callback(ChunkText, chunk.Text)
				}
			case ChunkThinking:
				thinking.WriteString(chunk.Text)
				if callback != nil {
					callback(ChunkThinking, chunk.Text)
				}
			case ChunkToolCall:
				if chunk.ToolCall != nil {
					calls = append(calls, chunk.ToolCall)
				}
			case ChunkDone:
				metrics = chunk.Metrics
			case ChunkError:
				if chunk.Err != nil {
					return nil, chunk.Err
				}
			}
		}
	}
}
