package mcp

import (
	"net/http"
	"sort"
	"strings"
)

// ProtocolVersion is the MCP protocol revision sent on every HTTP request.
const ProtocolVersion = "2025-06-18"

// protocolVersionHeader may not be overridden by user-supplied headers.
const protocolVersionHeader = "mcp-protocol-version"

// NormalizeHeaders lowercases user-supplied header keys with last-write-wins
// on case collisions, then pins the protocol version header. Keys are
// visited in sorted order so the surviving value is deterministic.
func NormalizeHeaders(userHeaders map[string]string) map[string]string {
	keys := make([]string, 0, len(userHeaders))
	for key := range userHeaders {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]string, len(userHeaders)+1)
	for _, key := range keys {
		normalized[strings.ToLower(key)] = userHeaders[key]
	}
	normalized[protocolVersionHeader] = ProtocolVersion
	return normalized
}

// applyHeaders sets normalized headers on an outgoing request.
func applyHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		req.Header.Set(key, value)
	}
}
