package orderbot

import (
	"errors"
	"fmt"
)

// EncodingError reports a payload that could not be turned into a request body.
// No request is sent when it is returned.
type EncodingError struct {
	InputType string
	Reason    string
	Err       error
}

func (e *EncodingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orderbot: encode %s payload: %s", e.InputType, e.Reason)
	}
	return fmt.Sprintf("orderbot: encode %s payload: %s: %v", e.InputType, e.Reason, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// TransportError covers connectivity failures, timeouts and server errors that
// outlived the retry budget. Attempts counts every request actually sent.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("orderbot: request failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a rejected request or a reply that could not be decoded.
type ProtocolError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("orderbot: protocol error (status %d): %v", e.StatusCode, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) HTTPStatusCode() int {
	return e.StatusCode
}

func asEncodingError(inputType string, err error) error {
	var encErr *EncodingError
	if errors.As(err, &encErr) {
		return encErr
	}
	return &EncodingError{InputType: inputType, Reason: "write multipart body", Err: err}
}
