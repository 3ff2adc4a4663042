// ABOUTME: Minimal in-process aggregator backing the gateway binary
// ABOUTME: Answers the MCP handshake and ping, rejects everything unrouted

package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mcpr/mcpr-gateway/internal/gateway"
)

const protocolVersion = "2024-11-05"

// Version is stamped into initialize responses.
var Version = "dev"

// Local is the in-process Aggregator. It handles the protocol handshake
// itself and reports method-not-found for tool traffic; routing to real tool
// servers plugs in behind the same interface.
type Local struct {
	mu       sync.RWMutex
	sessions map[string]*gateway.Session
	logger   *slog.Logger
}

// NewLocal creates an empty local aggregator.
func NewLocal() *Local {
	return &Local{
		sessions: make(map[string]*gateway.Session),
		logger:   slog.Default().With("component", "aggregator"),
	}
}

// Connect registers a streaming session.
func (l *Local) Connect(ctx context.Context, sess *gateway.Session) error {
	l.mu.Lock()
	l.sessions[sess.ID] = sess
	l.mu.Unlock()
	l.logger.Debug("session connected", "session_id", sess.ID)
	return nil
}

// Dispatch handles one JSON-RPC message and returns the raw response.
func (l *Local) Dispatch(ctx context.Context, msg json.RawMessage) (json.RawMessage, error) {
	var req gateway.Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return marshalResponse(gateway.Response{
			JSONRPC: "2.0",
			Error:   &gateway.Error{Code: gateway.CodeParseError, Message: "invalid JSON"},
		})
	}

	switch req.Method {
	case "initialize":
		return marshalResponse(gateway.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": protocolVersion,
				"capabilities": map[string]any{
					"tools": map[string]any{},
				},
				"serverInfo": map[string]any{
					"name":    "mcpr-gateway",
					"version": Version,
				},
			},
		})
	case "ping":
		return marshalResponse(gateway.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{},
		})
	default:
		l.logger.Debug("unrouted method", "method", req.Method)
		return marshalResponse(gateway.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &gateway.Error{Code: gateway.CodeMethodNotFound, Message: "method not found"},
		})
	}
}

func marshalResponse(resp gateway.Response) (json.RawMessage, error) {
	return json.Marshal(resp)
}
