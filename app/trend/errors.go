package trend

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindCredentialsMissing ErrorKind = "credentials_missing"
	KindNetwork            ErrorKind = "network_error"
	KindRateLimited        ErrorKind = "rate_limited"
	KindUpstreamAPI        ErrorKind = "upstream_api_error"
	KindParse              ErrorKind = "parse_error"
	KindEmptyResult        ErrorKind = "empty_result"
	KindInternal           ErrorKind = "internal_error"
)

// Error is the tagged failure returned by every collector call.
type Error struct {
	Kind   ErrorKind
	Source Source
	Status int    // upstream HTTP status, 0 when no response was received
	Detail string // upstream-provided detail, if any
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Message())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the caller-facing description, without the wrapped cause.
func (e *Error) Message() string {
	switch e.Kind {
	case KindCredentialsMissing:
		return "credentials not configured"
	case KindRateLimited:
		if e.Detail != "" {
			return "rate limited: " + e.Detail
		}
		return "rate limited, try again in 15 minutes"
	case KindNetwork:
		return "network error"
	case KindParse:
		return "malformed upstream document"
	case KindEmptyResult:
		return "upstream returned no items"
	case KindInternal:
		return "internal collector failure"
	}

	if e.Status != 0 && e.Detail != "" {
		return fmt.Sprintf("upstream error (%d): %s", e.Status, e.Detail)
	}
	if e.Status != 0 {
		return fmt.Sprintf("upstream error (%d)", e.Status)
	}
	if e.Detail != "" {
		return "upstream error: " + e.Detail
	}
	return "upstream error"
}

func NewError(source Source, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Source: source, Err: err}
}

// KindOf reports the taxonomy kind of err, or "" when err is not a collector error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
