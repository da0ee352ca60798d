// Package core provides the foundational domain types and contracts of
// statemesh:
//
//   - Value / State (the closed variant state bag persisted per session)
//   - Sessions (identity triple, State and append-only Event log)
//   - Events and content Parts (the audit trail of every turn)
//   - SessionStore (the persistence contract every backend honours)
//   - Gateway / ToolContext (the buffered mutation surface used by callbacks)
//   - TurnContext / Dispatcher (the boundary to the external model layer)
//
// The package performs no I/O. Backends live in package session, the turn
// executor in package runner.
package core
