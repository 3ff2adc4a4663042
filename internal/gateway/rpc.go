// ABOUTME: JSON-RPC 2.0 message types and wire-level helpers for the gateway
// ABOUTME: Includes routing metadata injection into params._meta

package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// JSON-RPC 2.0 types

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes, plus the implementation-defined session code.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeSessionError   = -32000
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// attachRequestMetadata injects routing metadata into the message's
// params._meta object without disturbing any other field. The aggregator
// reads the metadata to scope tool listings and attribute calls; messages
// that fail to parse as an object are returned unchanged for the dispatch
// path to reject.
func attachRequestMetadata(raw json.RawMessage, token, projectID string) (json.RawMessage, error) {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("parsing message for metadata injection: %w", err)
	}

	params := make(map[string]json.RawMessage)
	if p, ok := msg["params"]; ok && len(p) > 0 && string(p) != "null" {
		if err := json.Unmarshal(p, &params); err != nil {
			return nil, fmt.Errorf("parsing params for metadata injection: %w", err)
		}
	}

	meta := make(map[string]json.RawMessage)
	if m, ok := params["_meta"]; ok && len(m) > 0 && string(m) != "null" {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("parsing _meta for metadata injection: %w", err)
		}
	}

	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	projectJSON, err := json.Marshal(projectID)
	if err != nil {
		return nil, err
	}
	meta["token"] = tokenJSON
	meta["projectId"] = projectJSON

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	params["_meta"] = metaJSON

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	msg["params"] = paramsJSON

	return json.Marshal(msg)
}

// writeRPCError sends a JSON-RPC error response with the given HTTP status.
func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
