// Package executor holds the provider adapters. Each adapter turns a
// canonical Request into one backend's native HTTP call and its native
// response into a TokenStream or an ImageResult.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Settings are the per-request knobs forwarded from chatSettings.
type Settings struct {
	Temperature *float64
	// ImageSize is the requested image size, e.g. "1024x1024".
	ImageSize string
	// MaxTokens lowers the model's output cap when set.
	MaxTokens *int
}

// Request is the canonical chat request. Messages are forwarded in order as
// the raw JSON objects the client sent.
type Request struct {
	Model    string
	Messages []json.RawMessage
	Settings Settings
}

// TokenStream is a finite, non-restartable pull stream of text fragments.
// Next returns io.EOF once the source is exhausted. Close releases the
// upstream connection and is safe to call more than once.
type TokenStream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// ChatExecutor streams a chat completion from one backend.
type ChatExecutor interface {
	Identifier() string
	DisplayName() string
	ExecuteStream(ctx context.Context, apiKey string, req Request) (TokenStream, error)
}

// ImageExecutor produces a single generated image.
type ImageExecutor interface {
	Identifier() string
	DisplayName() string
	Generate(ctx context.Context, apiKey string, req Request) (ImageResult, error)
}

// ImageResult is the location of a generated image.
type ImageResult struct {
	URL   string
	Model string
}

// Markdown renders the result as a clickable image link.
func (r ImageResult) Markdown() string {
	return fmt.Sprintf("[![image](%s)](%s)", r.URL, r.URL)
}

// LastUserMessage returns the text of the most recent user message, used as
// the image prompt. Array contents contribute their text parts.
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		msg := gjson.ParseBytes(r.Messages[i])
		if msg.Get("role").String() != "user" {
			continue
		}
		return messageText(msg)
	}
	return ""
}

func messageText(msg gjson.Result) string {
	content := msg.Get("content")
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	if content.IsArray() {
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				parts = append(parts, part.Get("text").String())
			}
			return true
		})
	}
	msg.Get("parts").ForEach(func(_, part gjson.Result) bool {
		if t := part.Get("text"); t.Exists() {
			parts = append(parts, t.String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}
