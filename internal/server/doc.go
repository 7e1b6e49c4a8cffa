// Package server implements the HTTP and WebSocket transport of StreamChat.
//
// The implementation is organized into specialized files for configuration,
// origin checks, rate limiting, the connection hub, per-connection pumps,
// routing, and HTTP handlers. Chat semantics live in the chat and room
// packages; this package only moves frames between sockets and sessions.
package server
