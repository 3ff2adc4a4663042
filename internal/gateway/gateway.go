// ABOUTME: HTTP request gateway exposing the MCP endpoints
// ABOUTME: Routes direct posts and SSE sessions to the server aggregator

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcpr/mcpr-gateway/internal/auth"
)

// SessionIDHeader is the fallback header carrying the session id on message
// posts, for clients that cannot set query parameters.
const SessionIDHeader = "mcp-session-id"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// Aggregator is the downstream consumer of gateway traffic. Dispatch takes a
// complete JSON-RPC message, already carrying routing metadata, and returns
// the raw response to relay verbatim. Connect notifies the aggregator that a
// new SSE session exists so it can push server-initiated messages later.
type Aggregator interface {
	Dispatch(ctx context.Context, msg json.RawMessage) (json.RawMessage, error)
	Connect(ctx context.Context, sess *Session) error
}

// Config holds the gateway server's dependencies.
type Config struct {
	Addr       string
	Aggregator Aggregator
	Validator  *auth.TokenValidator
	Resolver   *ProjectResolver
	Sessions   *SessionRegistry
	Logger     *slog.Logger
}

// Server is the HTTP gateway. It authenticates callers, resolves project
// scope, injects routing metadata, and relays JSON-RPC traffic between
// clients and the aggregator.
type Server struct {
	addr       string
	aggregator Aggregator
	validator  *auth.TokenValidator
	resolver   *ProjectResolver
	sessions   *SessionRegistry
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a gateway server from the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("token validator is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("project resolver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionRegistry()
	}

	return &Server{
		addr:       cfg.Addr,
		aggregator: cfg.Aggregator,
		validator:  cfg.Validator,
		resolver:   cfg.Resolver,
		sessions:   sessions,
		logger:     logger,
	}, nil
}

// Sessions exposes the session registry so the workspace switcher can close
// every stream on a switch.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// Routes builds the gateway's handler. Every MCP endpoint sits behind the
// bearer-token middleware; /health does not.
func (s *Server) Routes() http.Handler {
	requireAuth := auth.Middleware(s.validator)

	mux := http.NewServeMux()
	mux.Handle("POST /mcp", requireAuth(http.HandlerFunc(s.handlePost)))
	mux.Handle("GET /mcp/sse", requireAuth(http.HandlerFunc(s.handleSSE)))
	mux.Handle("POST /mcp/messages", requireAuth(http.HandlerFunc(s.handleMessages)))
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// handlePost processes a single JSON-RPC message over plain HTTP. The
// response from the aggregator is relayed verbatim.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	body, req, ok := s.readMessage(w, r)
	if !ok {
		return
	}

	scope, ok := s.resolveScope(w, r, req.ID)
	if !ok {
		return
	}

	msg, err := attachRequestMetadata(body, identity.Token, scope.ProjectID)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, req.ID, CodeInvalidRequest, "invalid request structure")
		return
	}

	s.logger.Debug("dispatching request",
		"method", req.Method,
		"client_id", identity.ClientID,
		"filtered", scope.Filtered,
	)

	resp, err := s.aggregator.Dispatch(r.Context(), msg)
	if err != nil {
		s.logger.Error("aggregator dispatch failed", "method", req.Method, "error", err)
		writeRPCError(w, http.StatusInternalServerError, req.ID, CodeInternalError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(resp); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// handleSSE opens a long-lived event stream. The first frame announces the
// session id; responses to out-of-band message posts arrive as later frames.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	scope, ok := s.resolveScope(w, r, nil)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeRPCError(w, http.StatusInternalServerError, nil, CodeInternalError, "streaming unsupported")
		return
	}

	sess := s.sessions.Create(identity.ClientID, scope)
	defer s.sessions.Remove(sess.ID)

	if err := s.aggregator.Connect(r.Context(), sess); err != nil {
		s.logger.Error("aggregator rejected session", "session_id", sess.ID, "error", err)
		writeRPCError(w, http.StatusInternalServerError, nil, CodeInternalError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	announce, _ := json.Marshal(map[string]string{"sessionId": sess.ID})
	fmt.Fprintf(w, "data: %s\n\n", announce)
	flusher.Flush()

	s.logger.Info("session opened",
		"session_id", sess.ID,
		"client_id", identity.ClientID,
		"filtered", scope.Filtered,
	)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("session closed by client", "session_id", sess.ID)
			return
		case <-sess.done:
			s.logger.Info("session closed", "session_id", sess.ID)
			return
		case msg := <-sess.send:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// handleMessages accepts a JSON-RPC message bound for an existing SSE
// session. The HTTP response is a bare 202; the JSON-RPC response travels
// over the session's stream.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.Header.Get(SessionIDHeader)
	}
	if sessionID == "" {
		writeRPCError(w, http.StatusBadRequest, nil, CodeSessionError, "missing session id")
		return
	}

	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		writeRPCError(w, http.StatusNotFound, nil, CodeSessionError, "unknown session")
		return
	}

	body, req, ok := s.readMessage(w, r)
	if !ok {
		return
	}

	// A per-message project header overrides the session default for this
	// message only; the session's recorded scope is left untouched.
	scope := sess.Scope
	if _, present := r.Header[http.CanonicalHeaderKey(ProjectHeader)]; present {
		resolved, ok := s.resolveScope(w, r, req.ID)
		if !ok {
			return
		}
		scope = resolved
	}

	msg, err := attachRequestMetadata(body, identity.Token, scope.ProjectID)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, req.ID, CodeInvalidRequest, "invalid request structure")
		return
	}

	s.logger.Debug("dispatching session message",
		"method", req.Method,
		"session_id", sess.ID,
	)

	resp, err := s.aggregator.Dispatch(r.Context(), msg)
	if err != nil {
		s.logger.Error("aggregator dispatch failed",
			"method", req.Method,
			"session_id", sess.ID,
			"error", err,
		)
		writeRPCError(w, http.StatusInternalServerError, req.ID, CodeInternalError, "internal error")
		return
	}

	if !sess.Deliver(resp) {
		s.logger.Warn("dropped response for closed session", "session_id", sess.ID)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.sessions.Len())
}

// resolveScope maps the request's project header to a scope, writing the
// client error itself when the header names an unknown project. id is echoed
// in error responses when the caller has one.
func (s *Server) resolveScope(w http.ResponseWriter, r *http.Request, id json.RawMessage) (Scope, bool) {
	value := r.Header.Get(ProjectHeader)
	_, present := r.Header[http.CanonicalHeaderKey(ProjectHeader)]

	scope, err := s.resolver.Resolve(r.Context(), value, present)
	if errors.Is(err, ErrProjectNotFound) {
		writeRPCError(w, http.StatusBadRequest, id, CodeInvalidParams, err.Error())
		return Scope{}, false
	}
	if err != nil {
		s.logger.Error("project resolution failed", "error", err)
		writeRPCError(w, http.StatusInternalServerError, id, CodeInternalError, "internal error")
		return Scope{}, false
	}
	return scope, true
}

// readMessage reads and parses the request body, writing the wire error
// itself on failure.
func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (json.RawMessage, Request, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, CodeParseError, "failed to read request body")
		return nil, Request{}, false
	}
	if int64(len(body)) > MaxRequestBodySize {
		writeRPCError(w, http.StatusBadRequest, nil, CodeInvalidRequest, "request body too large")
		return nil, Request{}, false
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, http.StatusBadRequest, nil, CodeParseError, "invalid JSON")
		return nil, Request{}, false
	}
	return body, req, true
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully with a fresh timeout context.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown closes all sessions and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.CloseAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
