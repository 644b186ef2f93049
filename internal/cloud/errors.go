// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"errors"
	"net/http"
)

// ErrorKind classifies gateway failures.
type ErrorKind int

const (
	// KindValidation is a malformed or empty message list. No request is made.
	KindValidation ErrorKind = iota + 1
	// KindConfig is a missing credential. No request is made.
	KindConfig
	// KindUpstream is a non-success status from the service.
	KindUpstream
	// KindMalformed is a success status whose body lacks a reply.
	KindMalformed
	// KindTransport is a failure to complete the exchange at all.
	KindTransport
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfig:
		return "config"
	case KindUpstream:
		return "upstream"
	case KindMalformed:
		return "malformed"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// User-facing messages.
const (
	msgEmptyMessages   = "Invalid messages format. Messages must be a non-empty array."
	msgInvalidMessage  = "Each message must have a role and content string."
	msgNoUserMessage   = "Messages must include at least one user message."
	msgNotConfigured   = "GROQ API key not configured"
	msgUpstreamPrefix  = "Error from GROQ API: "
	msgMalformed       = "Unexpected response format from GROQ API"
	msgTransportPrefix = "Internal server error"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrInvalidMessages   = errors.New("invalid messages")
	ErrNotConfigured     = errors.New(msgNotConfigured)
	ErrUpstream          = errors.New("upstream error")
	ErrMalformedResponse = errors.New(msgMalformed)
	ErrTransport         = errors.New("transport error")
)

// Error is a classified gateway failure.
type Error struct {
	Kind ErrorKind

	// Status is the HTTP-equivalent status to report to callers. For
	// KindUpstream it is the upstream status.
	Status int

	// Message is human-readable and safe to show to users.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface. Transport errors include their cause.
func (e *Error) Error() string {
	if e.Kind == KindTransport && e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidMessages:
		return e.Kind == KindValidation
	case ErrNotConfigured:
		return e.Kind == KindConfig
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrMalformedResponse:
		return e.Kind == KindMalformed
	case ErrTransport:
		return e.Kind == KindTransport
	}
	return false
}

func newError(kind ErrorKind, status int, message string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Cause: cause}
}

func validationError(message string) *Error {
	return newError(KindValidation, http.StatusBadRequest, message, nil)
}

// IsConfigError reports whether err is a missing-credential failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsValidationError reports whether err is a rejected message list.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidMessages)
}

// StatusCode returns the HTTP-equivalent status for err, or 500 when err is
// not a gateway error.
func StatusCode(err error) int {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Status != 0 {
		return gwErr.Status
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err, or 0 when err is not a gateway error.
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return 0
}
