// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the closed error taxonomy used across the
// reconciliation engine. Every failure crossing a component boundary is
// wrapped in an Error carrying one of the kinds below so callers can branch
// on kind without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds
const (
	// ErrTokenExpired is returned when the cached access token failed its expiry check
	ErrTokenExpired = "token_expired"

	// ErrInvalidTokenResponse is returned when the token endpoint response fails schema validation
	ErrInvalidTokenResponse = "invalid_token_response"

	// ErrBadRequest is returned on a 400 from the platform; never retried
	ErrBadRequest = "bad_request"

	// ErrNotFound is returned on a 404 from the platform; never retried
	ErrNotFound = "not_found"

	// ErrTooManyRequests is returned on a 429 after the single retry was exhausted
	ErrTooManyRequests = "too_many_requests"

	// ErrGatewayTimeout is returned on a 504 after the single retry was exhausted
	ErrGatewayTimeout = "gateway_timeout"

	// ErrConnReset is returned on a transport-level connection reset after the single retry
	ErrConnReset = "conn_reset"

	// ErrServerError is returned on any other 5xx or unclassified failure
	ErrServerError = "server_error"

	// ErrSchemaFailure is returned when a single element of a response fails validation
	ErrSchemaFailure = "schema_failure"

	// ErrFatalBootstrap is returned when the dataset enumeration failed; aborts the run
	ErrFatalBootstrap = "fatal_bootstrap"
)

// Error represents an error in the reconciliation engine
type Error struct {
	// Type is the error kind
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewTokenExpiredError creates a new token expired error
func NewTokenExpiredError(message string, cause error) *Error {
	return NewError(ErrTokenExpired, message, cause)
}

// NewInvalidTokenResponseError creates a new invalid token response error
func NewInvalidTokenResponseError(message string, cause error) *Error {
	return NewError(ErrInvalidTokenResponse, message, cause)
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string, cause error) *Error {
	return NewError(ErrBadRequest, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *Error {
	return NewError(ErrNotFound, message, cause)
}

// NewTooManyRequestsError creates a new too many requests error
func NewTooManyRequestsError(message string, cause error) *Error {
	return NewError(ErrTooManyRequests, message, cause)
}

// NewGatewayTimeoutError creates a new gateway timeout error
func NewGatewayTimeoutError(message string, cause error) *Error {
	return NewError(ErrGatewayTimeout, message, cause)
}

// NewConnResetError creates a new connection reset error
func NewConnResetError(message string, cause error) *Error {
	return NewError(ErrConnReset, message, cause)
}

// NewServerError creates a new server error
func NewServerError(message string, cause error) *Error {
	return NewError(ErrServerError, message, cause)
}

// NewSchemaFailureError creates a new schema failure error
func NewSchemaFailureError(message string, cause error) *Error {
	return NewError(ErrSchemaFailure, message, cause)
}

// NewFatalBootstrapError creates a new fatal bootstrap error
func NewFatalBootstrapError(message string, cause error) *Error {
	return NewError(ErrFatalBootstrap, message, cause)
}

// kindOf returns the kind of err, or "" when no *Error is in the chain.
// errors.As is used so kinds survive wrapping by http.Client and friends.
func kindOf(err error) string {
	var e *Error
	if !stderrors.As(err, &e) {
		return ""
	}
	return e.Type
}

// Kind returns the taxonomy kind of err, or "" when none applies.
func Kind(err error) string {
	return kindOf(err)
}

// IsTokenExpired checks if the error is a token expired error
func IsTokenExpired(err error) bool {
	return kindOf(err) == ErrTokenExpired
}

// IsInvalidTokenResponse checks if the error is an invalid token response error
func IsInvalidTokenResponse(err error) bool {
	return kindOf(err) == ErrInvalidTokenResponse
}

// IsBadRequest checks if the error is a bad request error
func IsBadRequest(err error) bool {
	return kindOf(err) == ErrBadRequest
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return kindOf(err) == ErrNotFound
}

// IsTooManyRequests checks if the error is a too many requests error
func IsTooManyRequests(err error) bool {
	return kindOf(err) == ErrTooManyRequests
}

// IsGatewayTimeout checks if the error is a gateway timeout error
func IsGatewayTimeout(err error) bool {
	return kindOf(err) == ErrGatewayTimeout
}

// IsConnReset checks if the error is a connection reset error
func IsConnReset(err error) bool {
	return kindOf(err) == ErrConnReset
}

// IsServerError checks if the error is a server error
func IsServerError(err error) bool {
	return kindOf(err) == ErrServerError
}

// IsSchemaFailure checks if the error is a schema failure error
func IsSchemaFailure(err error) bool {
	return kindOf(err) == ErrSchemaFailure
}

// IsFatalBootstrap checks if the error is a fatal bootstrap error
func IsFatalBootstrap(err error) bool {
	return kindOf(err) == ErrFatalBootstrap
}
