package errors

import (
	stdErrors "errors"
	"net/http"
)

// Code is the stable, client-visible classification of a failure.
type Code string

// Transport-level codes.
const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Marketplace codes. Money-affecting ones abort loudly; notification and
// email failures are logged and swallowed by their callers.
const (
	CodeInvalidStateTransition  Code = "INVALID_STATE_TRANSITION"
	CodePaymentMetadataMissing  Code = "PAYMENT_METADATA_MISSING"
	CodeFeeMismatch             Code = "FEE_MISMATCH"
	CodeUniqueConflict          Code = "UNIQUE_CONFLICT"
	CodeNotificationDispatch    Code = "NOTIFICATION_DISPATCH_FAILED"
	CodeEmailSend               Code = "EMAIL_SEND_FAILED"
	CodePayoutAccountIncomplete Code = "PAYOUT_ACCOUNT_INCOMPLETE"
)

// Metadata drives how responses render a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func retryable(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, Retryable: true, PublicMessage: msg}
}

func final(status int, msg string) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg}
}

func (m Metadata) withDetails() Metadata {
	m.DetailsAllowed = true
	return m
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    final(http.StatusBadRequest, "validation failed").withDetails(),
	CodeUnauthorized:  final(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     final(http.StatusForbidden, "access denied"),
	CodeNotFound:      final(http.StatusNotFound, "resource not found"),
	CodeConflict:      final(http.StatusConflict, "conflict detected"),
	CodeStateConflict: final(http.StatusUnprocessableEntity, "state transition disallowed").withDetails(),
	CodeIdempotency:   final(http.StatusConflict, "idempotency key reused").withDetails(),
	CodeRateLimit:     final(http.StatusTooManyRequests, "rate limit exceeded"),
	CodeInternal:      retryable(http.StatusInternalServerError, "internal server error"),
	CodeDependency:    retryable(http.StatusServiceUnavailable, "dependency unavailable").withDetails(),

	CodeInvalidStateTransition:  final(http.StatusUnprocessableEntity, "offer is not in a state that allows this action").withDetails(),
	CodePaymentMetadataMissing:  final(http.StatusUnprocessableEntity, "payment is missing settlement metadata"),
	CodeFeeMismatch:             final(http.StatusUnprocessableEntity, "payment amounts do not reconcile"),
	CodeUniqueConflict:          retryable(http.StatusConflict, "conflict detected"),
	CodeNotificationDispatch:    retryable(http.StatusServiceUnavailable, "notification could not be delivered"),
	CodeEmailSend:               retryable(http.StatusServiceUnavailable, "email could not be delivered"),
	CodePayoutAccountIncomplete: final(http.StatusUnprocessableEntity, "seller cannot receive payouts yet").withDetails(),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause and caller-facing details.
// The nil *Error is usable and reads as an internal error.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
