package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session (or other keyed record) does not
	// exist. Callers treat it as "create new" rather than a fatal condition.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a session whose identity triple is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflict is returned by Put when the session version moved since it was read.
	ErrConflict = errors.New("version conflict")

	// ErrStoreUnavailable marks durable backend failures (connection, I/O, tx).
	// Turns failing with it left no partial state behind and are safe to retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrUnsupportedValue is returned when a Go value cannot be represented as a Value.
	ErrUnsupportedValue = errors.New("unsupported state value")
)

// TemplateRenderError reports a placeholder without a matching state key.
type TemplateRenderError struct {
	Key string // Missing key (empty when the template engine did not expose it)
	Err error  // Underlying template error, if any
}

func (e *TemplateRenderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("template render: missing state key %q", e.Key)
	}
	return fmt.Sprintf("template render: %v", e.Err)
}

func (e *TemplateRenderError) Unwrap() error { return e.Err }

// ExternalLayerError wraps failures raised by the model / tool dispatch layer.
type ExternalLayerError struct {
	Layer string // e.g. "model", "dispatcher"
	Err   error
}

func (e *ExternalLayerError) Error() string {
	return fmt.Sprintf("external layer %s: %v", e.Layer, e.Err)
}

func (e *ExternalLayerError) Unwrap() error { return e.Err }

// StoreError decorates a backend error with ErrStoreUnavailable while keeping
// the original cause reachable through errors.Is / errors.As.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
