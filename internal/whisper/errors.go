package whisper

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization reports that the native library returned no model context.
	ErrInitialization = errors.New("whisper: failed to initialise model context")
	// ErrSessionInitialization reports that the native library returned no state for a new session.
	ErrSessionInitialization = errors.New("whisper: failed to initialise session state")
	// ErrInference is returned when the native full pipeline exits with a non-zero status.
	ErrInference = errors.New("whisper: failed to process audio samples")
	// ErrInvalidText reports native output that is not valid UTF-8.
	ErrInvalidText = errors.New("whisper: native text is not valid utf-8")
	// ErrClosed is returned by operations on a closed Model or Session.
	ErrClosed = errors.New("whisper: use of closed handle")
	// ErrNativeUnavailable indicates the binary was built without the whispercpp tag.
	ErrNativeUnavailable = errors.New("whisper: native backend unavailable")
)

// ParamsError reports a Params field that cannot be represented in the native
// parameter block. No native call is made when it is returned.
type ParamsError struct {
	Field string
	Err   error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("whisper: invalid params field %s: %v", e.Field, e.Err)
}

func (e *ParamsError) Unwrap() error { return e.Err }

// StatusError carries the raw status code of a failed native call. It always
// unwraps to ErrInference.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (status %d)", ErrInference, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrInference }
