package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawStatusErr struct {
	code int
	msg  string
}

func (e rawStatusErr) Error() string   { return e.msg }
func (e rawStatusErr) StatusCode() int { return e.code }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		err      error
		status   int
		code     string
		message  string
	}{
		{
			name:     "missing credential",
			provider: "OpenAI",
			err:      errors.New("OpenAI API Key not found"),
			status:   http.StatusInternalServerError,
			code:     CodeAPIKeyNotFound,
			message:  "OpenAI API Key not found. Please set it in your profile settings.",
		},
		{
			name:     "openai incorrect key keeps upstream status",
			provider: "OpenAI",
			err:      rawStatusErr{code: 401, msg: "Incorrect API key provided: sk-abc***"},
			status:   http.StatusUnauthorized,
			code:     CodeAPIKeyIncorrect,
			message:  "OpenAI API Key is incorrect. Please fix it in your profile settings.",
		},
		{
			name:     "gemini invalid key",
			provider: "Google Gemini",
			err:      rawStatusErr{code: 400, msg: "API key not valid. Please pass a valid API key."},
			status:   http.StatusBadRequest,
			code:     CodeAPIKeyIncorrect,
			message:  "Google Gemini API Key is incorrect. Please fix it in your profile settings.",
		},
		{
			name:     "bare 401",
			provider: "Groq",
			err:      rawStatusErr{code: 401, msg: "Invalid token"},
			status:   http.StatusUnauthorized,
			code:     CodeAPIKeyIncorrect,
			message:  "Groq API Key is incorrect. Please fix it in your profile settings.",
		},
		{
			name:     "other upstream failure is verbatim",
			provider: "Mistral",
			err:      rawStatusErr{code: 429, msg: "Rate limit exceeded"},
			status:   http.StatusTooManyRequests,
			code:     CodeUpstream,
			message:  "Rate limit exceeded",
		},
		{
			name:     "plain error defaults to 500",
			provider: "Perplexity",
			err:      errors.New("connection reset by peer"),
			status:   http.StatusInternalServerError,
			code:     CodeUpstream,
			message:  "connection reset by peer",
		},
		{
			name:     "deadline",
			provider: "OpenAI",
			err:      fmt.Errorf("upstream: %w", context.DeadlineExceeded),
			status:   http.StatusGatewayTimeout,
			code:     CodeUpstream,
			message:  "upstream: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.provider, tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.status, got.HTTPStatusCode)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []error{
		errors.New("Google Gemini API Key not found"),
		rawStatusErr{code: 401, msg: "nope"},
		rawStatusErr{code: 503, msg: "overloaded"},
		UpgradeRequired(),
		NoFreeQuestions(),
	}
	for _, in := range inputs {
		once := Normalize("Google Gemini", in)
		twice := Normalize("Google Gemini", once)
		assert.Same(t, once, twice)
		assert.Equal(t, once.Message, twice.Message)
		assert.Equal(t, once.HTTPStatusCode, twice.HTTPStatusCode)
	}
}

func TestNormalizeKeepsGateErrors(t *testing.T) {
	gate := UpgradePending()
	wrapped := fmt.Errorf("authorize: %w", gate)
	assert.Same(t, gate, Normalize("OpenAI", wrapped))
}

func TestNormalizeNil(t *testing.T) {
	assert.Nil(t, Normalize("OpenAI", nil))
}
