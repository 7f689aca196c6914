package chat

import "errors"

var (
	// ErrEmptyRequest rejects a send with no text, attachment, or
	// extracted text. Raised before any network action.
	ErrEmptyRequest = errors.New("empty request")

	// ErrSessionRequired rejects a send without a target session id.
	ErrSessionRequired = errors.New("session required")

	// ErrStreamActive rejects a send while the session already has an
	// in-flight stream.
	ErrStreamActive = errors.New("stream already active for session")
)
