package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// statusCoder is implemented by upstream failures that know their HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Normalize converts a raw failure observed while serving provider into an
// AppError. Values that are already normalized pass through untouched, so
// applying Normalize twice yields the same result as applying it once.
func Normalize(provider string, err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	status := http.StatusInternalServerError
	var sc statusCoder
	if stderrors.As(err, &sc) {
		if code := sc.StatusCode(); code > 0 {
			status = code
		}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "api key not found"):
		return &AppError{
			HTTPStatusCode: status,
			Code:           CodeAPIKeyNotFound,
			Message:        fmt.Sprintf("%s API Key not found. Please set it in your profile settings.", provider),
			Provider:       provider,
			Err:            err,
		}
	case strings.Contains(lower, "incorrect api key"),
		strings.Contains(lower, "api key not valid"),
		status == http.StatusUnauthorized:
		return &AppError{
			HTTPStatusCode: status,
			Code:           CodeAPIKeyIncorrect,
			Message:        fmt.Sprintf("%s API Key is incorrect. Please fix it in your profile settings.", provider),
			Provider:       provider,
			Err:            err,
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return &AppError{
		HTTPStatusCode: status,
		Code:           CodeUpstream,
		Message:        raw,
		Provider:       provider,
		Err:            err,
	}
}
