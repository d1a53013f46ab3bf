package transcriber

import (
	"errors"
	"fmt"
)

// Kind classifies why a single chunk could not be transcribed.
type Kind string

const (
	TransportError Kind = "transport_error"
	ServiceError   Kind = "service_error"
	ProtocolError  Kind = "protocol_error"
)

// Error is a per-chunk transcription failure. It never aborts a session.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "transcription error"
	}
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf reports the Kind of err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// classify turns an arbitrary adapter error into an *Error. Errors that are
// already classified pass through; anything else happened before a usable
// response existed (dial, TLS, deadline, cancellation) and is a transport
// failure.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Kind: TransportError, Err: err}
}
