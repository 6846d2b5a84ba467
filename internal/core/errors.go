// SPDX-FileCopyrightText: 2026 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sapcc/go-bits/logg"
)

// ErrorKind classifies a ServiceError. The string value doubles as the
// "errorCode" field of error responses.
type ErrorKind string

const (
	ErrValidation         ErrorKind = "VALIDATION"
	ErrBadRequest         ErrorKind = "BAD_REQUEST"
	ErrUnauthorized       ErrorKind = "UNAUTHORIZED"
	ErrForbidden          ErrorKind = "FORBIDDEN"
	ErrNotFound           ErrorKind = "NOT_FOUND"
	ErrConflict           ErrorKind = "CONFLICT"
	ErrIllegalTransition  ErrorKind = "ILLEGAL_TRANSITION"
	ErrPalletFull         ErrorKind = "PALLET_FULL"
	ErrPalletMaintenance  ErrorKind = "PALLET_MAINTENANCE"
	ErrPalletNotFound     ErrorKind = "PALLET_NOT_FOUND"
	ErrPositionTaken      ErrorKind = "POSITION_TAKEN"
	ErrOccupantNotFound   ErrorKind = "OCCUPANT_NOT_FOUND"
	ErrMachineOffline     ErrorKind = "MACHINE_OFFLINE"
	ErrAccountLocked      ErrorKind = "ACCOUNT_LOCKED"
	ErrRateLimited        ErrorKind = "RATE_LIMITED"
	ErrInternal           ErrorKind = "INTERNAL"
	ErrServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"
)

// HTTPStatus returns the HTTP status code that error responses of this kind carry.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound, ErrPalletNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrAccountLocked:
		return http.StatusLocked
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrInternal:
		return http.StatusInternalServerError
	case ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		// BadRequest, IllegalTransition and all allocation-engine kinds
		return http.StatusBadRequest
	}
}

// FieldError describes one field that failed validation. It appears verbatim
// in the "errors" array of error responses.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ServiceError is an error with a classification that the API layer maps onto
// an HTTP status and a structured error response.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Fields  []FieldError //only filled for ErrValidation
}

// Error implements the builtin/error interface.
func (e ServiceError) Error() string {
	return e.Message
}

// Errorf builds a ServiceError in the same way as fmt.Errorf.
func Errorf(kind ErrorKind, msg string, args ...any) ServiceError {
	return ServiceError{Kind: kind, Message: fmt.Sprintf(msg, args...)}
}

// ValidationError builds a ServiceError of kind ErrValidation from the given
// field errors. At least one field error must be supplied.
func ValidationError(fields ...FieldError) ServiceError {
	msg := "validation failed"
	if len(fields) == 1 {
		msg = fields[0].Message
	}
	return ServiceError{Kind: ErrValidation, Message: msg, Fields: fields}
}

// AsServiceError converts any error into a ServiceError. Errors that do not
// carry a classification come out as ErrInternal.
func AsServiceError(err error) ServiceError {
	var serr ServiceError
	if errors.As(err, &serr) {
		return serr
	}
	return ServiceError{Kind: ErrInternal, Message: err.Error()}
}

// IsErrorKind checks whether the given error is a ServiceError of the given kind.
func IsErrorKind(err error, kind ErrorKind) bool {
	var serr ServiceError
	return errors.As(err, &serr) && serr.Kind == kind
}

// ErrorResponse is the wire format shared by all error responses.
type ErrorResponse struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	ErrorCode ErrorKind    `json:"errorCode"`
	Errors    []FieldError `json:"errors,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// BuildErrorResponse maps err onto its HTTP status code and response body.
// Unclassified errors come out as 500; their message may contain SQL fragments
// or other internals, so it is only passed through when debug logging is on.
func BuildErrorResponse(err error, now time.Time) (int, ErrorResponse) {
	serr := AsServiceError(err)
	msg := serr.Message
	if serr.Kind == ErrInternal && !logg.ShowDebug {
		msg = "internal server error"
	}
	return serr.Kind.HTTPStatus(), ErrorResponse{
		Success:   false,
		Message:   msg,
		ErrorCode: serr.Kind,
		Errors:    serr.Fields,
		Timestamp: now,
	}
}
