// Package autherr defines the stable error taxonomy shared by the
// authorization and session core. Every failure that crosses the service
// boundary maps to one of these codes; internal causes stay in server logs.
package autherr

import (
	"errors"
	"fmt"
)

// Code is a stable, user-visible error code.
type Code string

const (
	CodeBadRequest        Code = "BadRequest"
	CodeUnAuthorized      Code = "UnAuthorized"
	CodeAccessDenied      Code = "AccessDenied"
	CodeNotFound          Code = "NotFound"
	CodeConflict          Code = "Conflict"
	CodeDuplicateData     Code = "DuplicateData"
	CodeInvalidState      Code = "InvalidState"
	CodePolicyUnavailable Code = "PolicyEvaluationUnavailable"
)

// Error carries a stable code and a safe, user-visible message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the internal cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same code, so sentinels below work
// with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is checks.
var (
	ErrBadRequest        = &Error{Code: CodeBadRequest, Message: "malformed input"}
	ErrUnAuthorized      = &Error{Code: CodeUnAuthorized, Message: "missing or invalid credentials"}
	ErrAccessDenied      = &Error{Code: CodeAccessDenied, Message: "permission denied"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict          = &Error{Code: CodeConflict, Message: "concurrent modification"}
	ErrDuplicateData     = &Error{Code: CodeDuplicateData, Message: "already exists"}
	ErrInvalidState      = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrPolicyUnavailable = &Error{Code: CodePolicyUnavailable, Message: "policy evaluation unavailable"}
)

// New builds an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that keeps err as its internal cause. The cause is
// never serialized into response bodies.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf returns the taxonomy code for err, or CodeBadRequest and false
// when err does not carry one.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return CodeBadRequest, false
}
