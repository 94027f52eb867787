package domain

import "errors"

// Stage errors. Implementations wrap these with fmt.Errorf("%w: ...") so the
// processor can classify failures with errors.Is.
var (
	ErrMessageParse     = errors.New("message parse error")
	ErrMalformedLocator = errors.New("malformed locator")
	ErrRetrieval        = errors.New("retrieval error")
	ErrMetadataMissing  = errors.New("metadata missing")
	ErrUnreadableMedia  = errors.New("unreadable media")
	ErrInferenceFailure = errors.New("inference failure")
	ErrPersistence      = errors.New("persistence error")
)

// ErrInferenceTimeout is an inference failure caused by the caller-side deadline.
var ErrInferenceTimeout = &timeoutError{}

type timeoutError struct{}

func (e *timeoutError) Error() string { return "inference failure: timeout" }

func (e *timeoutError) Is(target error) bool {
	return target == ErrInferenceFailure
}
