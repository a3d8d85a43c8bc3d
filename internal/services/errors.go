package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies intake failures
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindVerification ErrorKind = "verification"
	KindUpstream     ErrorKind = "upstream"
	KindDispatch     ErrorKind = "dispatch"
	KindConflict     ErrorKind = "conflict"
)

// Client-facing messages. These strings are part of the HTTP contract.
const (
	MsgMissingFields      = "Missing required fields."
	MsgInvalidPayload     = "Invalid request payload."
	MsgInvalidEmail       = "Valid email is required."
	MsgCaptchaFailed      = "CAPTCHA verification failed."
	MsgSomethingWentWrong = "Something went wrong. Please try again."
	MsgInProgress         = "Your request is already being processed. Please wait."
)

// IntakeError is returned by every IntakeService operation that fails
type IntakeError struct {
	Kind    ErrorKind
	Message string
	Codes   []string
	Err     error
}

func (e *IntakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *IntakeError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status
func (e *IntakeError) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindVerification:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string) *IntakeError {
	return &IntakeError{Kind: KindValidation, Message: message}
}

func NewVerificationError(codes []string) *IntakeError {
	return &IntakeError{Kind: KindVerification, Message: MsgCaptchaFailed, Codes: codes}
}

func NewUpstreamError(err error) *IntakeError {
	return &IntakeError{Kind: KindUpstream, Message: MsgSomethingWentWrong, Err: err}
}

func NewDispatchError(err error) *IntakeError {
	return &IntakeError{Kind: KindDispatch, Message: MsgSomethingWentWrong, Err: err}
}

// NewConflictError reports an Idempotency-Key whose first request has not finished
func NewConflictError() *IntakeError {
	return &IntakeError{Kind: KindConflict, Message: MsgInProgress}
}

// AsIntakeError unwraps err into an IntakeError, collapsing unknown errors to a dispatch failure
func AsIntakeError(err error) *IntakeError {
	var ie *IntakeError
	if errors.As(err, &ie) {
		return ie
	}
	return NewDispatchError(err)
}
