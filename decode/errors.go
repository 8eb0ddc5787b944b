package decode

import "fmt"

// DecodeError reports malformed call data. Callers must treat an empty
// operation list accompanied by a DecodeError as "nothing found", never as
// "call has no effect".
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("decode: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(reason string, err error) *DecodeError {
	return &DecodeError{Reason: reason, Err: err}
}
