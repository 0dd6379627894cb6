package privacy

// SanitizedError wraps an error so that Error() returns a scrubbed message.
// The original error stays reachable through Unwrap for errors.Is and errors.As.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

func (e *SanitizedError) Unwrap() error {
	return e.original
}

// WrapError scrubs an error message with ScrubMessage. A nil error stays nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
