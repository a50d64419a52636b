// Package apierr carries the pipeline's error taxonomy. Every failure that reaches
// a caller is an *Error with an HTTP status, a stable code and a short message.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeNotAuthenticated   Code = "not_authenticated"
	CodeNotFound           Code = "not_found"
	CodeAccessDenied       Code = "access_denied"
	CodeUsageLimitExceeded Code = "usage_limit_exceeded"
	CodeExtractionFailed   Code = "extraction_failed"
	CodeGenerationFailed   Code = "generation_failed"
	CodeGenerationTimeout  Code = "generation_timeout"
	CodeInvalidState       Code = "invalid_state"
	CodeBadRequest         Code = "bad_request"
)

// LimitReason distinguishes the causes of a usage limit failure.
type LimitReason string

const (
	ReasonFeatureUnavailable LimitReason = "feature_unavailable"
	ReasonQuotaReached       LimitReason = "quota_reached"
	ReasonDocumentTooLarge   LimitReason = "document_too_large"
	ReasonTooManyDocuments   LimitReason = "too_many_documents"
	ReasonPeriodMissing      LimitReason = "usage_period_missing"
)

type Error struct {
	Status  int
	Code    Code
	Message string
	Reason  LimitReason
	// Limit is the concrete quota value for usage failures, nil otherwise.
	Limit *int64
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.Code != "":
		return string(e.Code)
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code Code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func NotAuthenticated() *Error {
	return New(http.StatusUnauthorized, CodeNotAuthenticated, "not authenticated", nil)
}

func NotFound(what string) *Error {
	return New(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

func AccessDenied(what string) *Error {
	return New(http.StatusForbidden, CodeAccessDenied, "access to "+what+" denied", nil)
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message, nil)
}

func InvalidState(message string, err error) *Error {
	return New(http.StatusConflict, CodeInvalidState, message, err)
}

// UsageLimit builds a usage_limit_exceeded error. limit < 0 means the failure
// has no concrete quota value attached.
func UsageLimit(reason LimitReason, message string, limit int64) *Error {
	e := New(http.StatusTooManyRequests, CodeUsageLimitExceeded, message, nil)
	e.Reason = reason
	if limit >= 0 {
		e.Limit = &limit
	}
	return e
}

func ExtractionFailed(message string, err error) *Error {
	return New(http.StatusUnprocessableEntity, CodeExtractionFailed, message, err)
}

func GenerationFailed(err error) *Error {
	return New(http.StatusBadGateway, CodeGenerationFailed, "generation failed", err)
}

func GenerationTimeout(err error) *Error {
	return New(http.StatusGatewayTimeout, CodeGenerationTimeout, "generation timed out", err)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// StatusOf maps any error to an HTTP status.
func StatusOf(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
