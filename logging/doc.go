// Package logging provides a minimal logging interface and adapters for statemesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the registry, stores and turn executor use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - MeshLogger, an slog backed logger with session / turn scoped attributes
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(registry, dispatcher, func(o *runner.Options) { o.Logger = logger })
//
// Arguments after the message are alternating key/value pairs, exactly like slog.
package logging
