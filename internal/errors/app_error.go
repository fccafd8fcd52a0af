// Package errors defines the error shape returned to chat clients and the
// normalizer that turns provider and gate failures into it.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Machine-readable codes carried by AppError.
const (
	CodeUnauthenticated   = "unauthenticated"
	CodeProfileLookup     = "profile_lookup_failed"
	CodeProfileUpdate     = "profile_update_failed"
	CodeNoFreeQuestions   = "no_free_questions"
	CodeUpgradeRequired   = "upgrade_required"
	CodeUpgradePending    = "upgrade_pending"
	CodeAPIKeyNotFound    = "api_key_not_found"
	CodeAPIKeyIncorrect   = "api_key_incorrect"
	CodeUpstream          = "upstream_error"
	CodeInvalidRequest    = "invalid_request"
	CodeUnknownProvider   = "unknown_provider"
	CodeStreamInterrupted = "stream_interrupted"
)

// AppError is a normalized failure: a user-facing message plus the HTTP
// status it should be reported with. Once built it is never re-wrapped.
type AppError struct {
	// HTTPStatusCode is the HTTP status code to return.
	HTTPStatusCode int `json:"-"`
	// Code is an internal error code string.
	Code string `json:"code"`
	// Message is the user-facing error message.
	Message string `json:"message"`
	// Provider names the backend that produced the failure, if any.
	Provider string `json:"provider,omitempty"`
	// Err is the underlying error (not marshaled to JSON).
	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode reports the HTTP status, defaulting to 500.
func (e *AppError) StatusCode() int {
	if e.HTTPStatusCode <= 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatusCode
}

// ToJSON returns the JSON byte representation of the error.
func (e *AppError) ToJSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// New creates a new AppError.
func New(statusCode int, code, message string, err error) *AppError {
	return &AppError{
		HTTPStatusCode: statusCode,
		Code:           code,
		Message:        message,
		Err:            err,
	}
}

// Unauthenticated is returned when a request carries no usable session.
func Unauthenticated(err error) *AppError {
	return New(http.StatusUnauthorized, CodeUnauthenticated, "You must be signed in to use this endpoint.", err)
}

// ProfileLookup wraps a failure to read the caller's profile.
func ProfileLookup(err error) *AppError {
	msg := "failed to load profile"
	if err != nil {
		msg = err.Error()
	}
	return New(http.StatusInternalServerError, CodeProfileLookup, msg, err)
}

// ProfileUpdate wraps a failure to persist a profile change.
func ProfileUpdate(err error) *AppError {
	msg := "failed to update profile"
	if err != nil {
		msg = err.Error()
	}
	return New(http.StatusInternalServerError, CodeProfileUpdate, msg, err)
}

func NoFreeQuestions() *AppError {
	return New(http.StatusForbidden, CodeNoFreeQuestions, "There's no remaining free questions.", nil)
}

func UpgradeRequired() *AppError {
	return New(http.StatusForbidden, CodeUpgradeRequired, "You should upgrade your plan.", nil)
}

func UpgradePending() *AppError {
	return New(http.StatusForbidden, CodeUpgradePending, "Your plan upgrade is currently being processed.", nil)
}

// InvalidRequest reports a malformed client payload.
func InvalidRequest(message string, err error) *AppError {
	return New(http.StatusBadRequest, CodeInvalidRequest, message, err)
}
