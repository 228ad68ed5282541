// Package transport defines the handler interfaces and middleware chain
// that sit between respondent channels and the dialogue engine.
//
// Every channel (HTTP, websocket, terminal) turns what it receives into an
// Inbound event and hands it to a TurnHandler. The engine implements
// TurnHandler; channels never touch session state directly.
//
// # Handler Interfaces
//
//   - TurnHandler processes start, reply and cancel events.
//   - SessionReader and FormCatalog serve read-only views.
//   - SubmissionStore persists finished sessions and is only present when
//     a storage backend is configured.
//
// # Middleware
//
// The middleware chain wraps TurnHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
