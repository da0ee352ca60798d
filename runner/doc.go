// Package runner implements the turn executor.
//
// A turn moves through START -> RENDER -> DISPATCH -> COMMIT -> DONE, with
// ERROR reachable from every step:
//   - START acquires the per-session lock and loads the committed session
//   - RENDER substitutes state into the instruction template; a missing key
//     is fatal (core.TemplateRenderError)
//   - DISPATCH hands the rendered turn to a core.Dispatcher (for example
//     flow.ToolLoop); callbacks write into the turn's core.Gateway only
//   - COMMIT applies the pending delta and the turn's events to a clone of
//     the session and persists it with a single SessionStore.Put
//   - DONE extracts the final agent response
//
// A failed turn never leaves partial state behind: the pending delta lives
// only in memory until the single Put succeeds.
package runner
