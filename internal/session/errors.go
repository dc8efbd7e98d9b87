package session

import (
	"errors"
	"fmt"

	"orderbot-client/internal/orderbot"
)

type ErrorCode string

const (
	ErrorInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorUpstreamRejected    ErrorCode = "UPSTREAM_REJECTED"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// genericFailure is what users see whenever a send fails.
const genericFailure = "Sorry, I encountered an error processing your request. Please try again."

type Error struct {
	Code     ErrorCode
	Reason   string
	Attempts int
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("session: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("session: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether asking the user to try again makes sense.
func (e *Error) Retryable() bool {
	return e != nil && e.Code == ErrorUpstreamUnavailable
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// classify converts client failures into session errors without inspecting
// error strings.
func classify(err error) *Error {
	var encErr *orderbot.EncodingError
	if errors.As(err, &encErr) {
		return newError(ErrorInvalidInput, encErr.Reason, err)
	}

	var trErr *orderbot.TransportError
	if errors.As(err, &trErr) {
		e := newError(ErrorUpstreamUnavailable, "orderbot_unreachable", err)
		e.Attempts = trErr.Attempts
		return e
	}

	var protoErr *orderbot.ProtocolError
	if errors.As(err, &protoErr) {
		reason := "orderbot_rejected"
		if protoErr.StatusCode >= 200 && protoErr.StatusCode < 300 {
			reason = "orderbot_malformed_response"
		}
		e := newError(ErrorUpstreamRejected, reason, err)
		e.Status = protoErr.StatusCode
		return e
	}

	return newError(ErrorInternal, "unexpected_error", err)
}

// UserMessage is the chat text shown in place of a reply when err is non-nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var sessErr *Error
	if errors.As(err, &sessErr) && sessErr.Code == ErrorInvalidInput {
		return "Sorry, that message could not be sent. Please check it and try again."
	}
	return genericFailure
}
