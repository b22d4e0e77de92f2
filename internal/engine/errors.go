package engine

import "errors"

// invalidSizeError reports a malformed size string from the client.
type invalidSizeError struct{ size string }

func (e invalidSizeError) Error() string {
	return "invalid size format: " + e.size + " (expected like \"512x512\")"
}

// ErrInvalidSize constructs an invalidSizeError carrying the offending string.
func ErrInvalidSize(size string) error { return invalidSizeError{size: size} }

// IsInvalidSize reports whether err indicates a malformed size string (400).
func IsInvalidSize(err error) bool {
	var e invalidSizeError
	return errors.As(err, &e)
}

// modelMismatchError signals that the requested model id matches neither the
// served name nor the loaded path, for 421 mapping.
type modelMismatchError struct {
	requested string
	serving   string
}

func (e modelMismatchError) Error() string {
	return "model '" + e.requested + "' not loaded; current model: " + e.serving
}

// ErrModelMismatch constructs a modelMismatchError.
func ErrModelMismatch(requested, serving string) error {
	return modelMismatchError{requested: requested, serving: serving}
}

// IsModelMismatch reports whether err indicates the wrong server was targeted.
func IsModelMismatch(err error) bool {
	var e modelMismatchError
	return errors.As(err, &e)
}

// engineNotReadyError signals that no pipeline is installed yet (503).
type engineNotReadyError struct{}

func (engineNotReadyError) Error() string { return "no model loaded; server is not ready" }

// ErrEngineNotReady constructs an engineNotReadyError.
func ErrEngineNotReady() error { return engineNotReadyError{} }

// IsEngineNotReady reports whether err indicates a missing engine.
func IsEngineNotReady(err error) bool {
	var e engineNotReadyError
	return errors.As(err, &e)
}

// modelLoadError is fatal at startup: packaged-archive load failed or every
// construction strategy was exhausted.
type modelLoadError struct {
	msg   string
	cause error
}

func (e *modelLoadError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *modelLoadError) Unwrap() error { return e.cause }

// ErrModelLoad wraps cause as a fatal model load failure.
func ErrModelLoad(msg string, cause error) error { return &modelLoadError{msg: msg, cause: cause} }

// IsModelLoad reports whether err indicates a fatal model load failure.
func IsModelLoad(err error) bool {
	var e *modelLoadError
	return errors.As(err, &e)
}

// generationError signals a failure during inference or encoding (500).
type generationError struct {
	msg   string
	cause error
}

func (e *generationError) Error() string {
	if e.cause == nil {
		return "image generation failed: " + e.msg
	}
	return "image generation failed: " + e.msg + ": " + e.cause.Error()
}

func (e *generationError) Unwrap() error { return e.cause }

// ErrGeneration wraps cause as a request-time generation failure.
func ErrGeneration(msg string, cause error) error { return &generationError{msg: msg, cause: cause} }

// IsGeneration reports whether err indicates an inference/encoding failure.
func IsGeneration(err error) bool {
	var e *generationError
	return errors.As(err, &e)
}

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "too busy: generation queue is full" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// RootCause unwraps err to its innermost cause and returns that message.
// Used by the startup failure diagnostic consumed by the launcher.
func RootCause(err error) string {
	if err == nil {
		return ""
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
