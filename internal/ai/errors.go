package ai

import "errors"

// Errors returned by Guard and by handlers that validate generated output.
// Job handlers treat all three as transient, so the task is retried.
var (
	// ErrProviderUnavailable means the text generator could not be reached.
	ErrProviderUnavailable = errors.New("text generator unavailable")
	// ErrInferenceTimeout means a generation ran past the configured timeout.
	ErrInferenceTimeout = errors.New("text generation timed out")
	// ErrInvalidResponse means the reply was empty or not in the expected shape,
	// such as a clinical report that is not a JSON object.
	ErrInvalidResponse = errors.New("text generator returned an invalid reply")
)
