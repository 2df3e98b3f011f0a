package service

import "fmt"

// Rejection reasons, also used as metric labels.
const (
	ReasonMissingField      = "missing_field"
	ReasonUnsupportedStatus = "unsupported_status"
	ReasonInvalidFormat     = "invalid_format"
	ReasonInvalidWindow     = "invalid_window"
)

// ValidationError reports a malformed event or query. Nothing was persisted.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// StoreError wraps a failure of the event store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
