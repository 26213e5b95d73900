// Package server implements the WebSocket transport for Roomcast.
//
// The implementation is organized into specialized files for configuration,
// origin policy, the connection hub, per-connection clients, routing, and
// HTTP server control. Presence and fan-out semantics live in internal/chat;
// this package only moves bytes and surfaces connect/disconnect to the core.
package server
