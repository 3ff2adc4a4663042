// ABOUTME: Package documentation for the request gateway
// ABOUTME: Explains the transport endpoints and the relay contract

// Package gateway exposes the router's MCP endpoints over HTTP.
//
// Three endpoints carry client traffic, all behind bearer-token auth:
//
//   - POST /mcp sends a single JSON-RPC message and receives the response
//     in the HTTP reply.
//   - GET /mcp/sse opens a server-sent-events stream. The first frame
//     announces the session id; all later frames are JSON-RPC responses.
//   - POST /mcp/messages sends a message on behalf of an existing SSE
//     session, identified by the sessionId query parameter or the
//     mcp-session-id header. The HTTP reply is a bare 202; the JSON-RPC
//     response is delivered over the session's stream.
//
// The gateway never interprets message payloads beyond envelope parsing. It
// resolves the x-mcpr-project header to a project scope, injects the caller's
// token and resolved project id into params._meta, and relays whatever the
// aggregator returns byte for byte.
package gateway
