// Package session houses the concrete core.SessionStore backends and the
// Session Registry that resolves (app, user, session?) requests to sessions.
//
// Backends:
//
//   - InMemoryStore: volatile, process local; tests and demos
//   - SQLiteStore: durable, one row per session plus an ordered event table
//   - CachedStore: read-through LRU in front of any other store
//
// All backends share the conformance suite in internal/testutil, so calling
// code never depends on which implementation the wiring layer picked.
package session
