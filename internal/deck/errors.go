package deck

import "errors"

var (
	// ErrMalformedOutput means generator output could not be turned into a record.
	// It is always retryable.
	ErrMalformedOutput = errors.New("malformed generator output")

	// ErrReferenceServiceUnavailable means the card reference service could not be reached.
	ErrReferenceServiceUnavailable = errors.New("card reference service unavailable")

	// ErrGenerationService means the language model service failed. It ends the session.
	ErrGenerationService = errors.New("generation service error")

	// ErrInvalidRequest means the request was rejected before any external call.
	ErrInvalidRequest = errors.New("invalid deck request")

	// ErrCancelled means the caller abandoned the session.
	ErrCancelled = errors.New("session cancelled")
)
