// Package perr is the closed error taxonomy shared across HTTP handlers,
// the orchestrator, and background tasks. Handlers map a Kind to a status
// code; background tasks (reconciler, webhook dispatcher) only ever log it.
package perr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInvalidRequest Kind = iota
	KindInvalidIPAddress
	KindInvalidPrefix
	KindDuplicateEvent
	KindUnauthorized
	KindNotFound
	KindMitigationNotFound
	KindNoPlaybookFound
	KindIPNotOwned
	KindGuardrailViolation
	KindRateLimited
	KindShuttingDown
	KindBgpAnnouncementFailed
	KindBgpWithdrawalFailed
	KindBgpSessionError
	KindDatabase
	KindMigration
	KindConfig
	KindInternal
)

// Error is the single concrete error type the rest of the codebase returns;
// Kind determines HTTP status mapping and retry/log policy.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfterSeconds is only set for KindRateLimited.
	RetryAfterSeconds int
	Err               error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func RateLimited(retryAfterSeconds int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limited", RetryAfterSeconds: retryAfterSeconds}
}

func DuplicateEvent(source, externalID string) *Error {
	return New(KindDuplicateEvent, fmt.Sprintf("duplicate event from %s: %s", source, externalID))
}

func GuardrailViolation(message string) *Error {
	return New(KindGuardrailViolation, message)
}

// StatusCode maps a Kind to the HTTP status the §7 taxonomy assigns it.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidRequest, KindInvalidIPAddress, KindInvalidPrefix:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound, KindMitigationNotFound:
		return http.StatusNotFound
	case KindDuplicateEvent:
		return http.StatusConflict
	case KindGuardrailViolation, KindNoPlaybookFound:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindShuttingDown:
		return http.StatusServiceUnavailable
	case KindIPNotOwned:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// As reports whether err is (or wraps) a *perr.Error, mirroring errors.As
// for callers that only have a generic error.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
