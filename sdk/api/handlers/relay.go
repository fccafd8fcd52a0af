package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/multichat/chatproxy/internal/errors"
	"github.com/multichat/chatproxy/internal/logging"
	"github.com/multichat/chatproxy/internal/runtime/executor"
	log "github.com/sirupsen/logrus"
)

// StreamAbortedError reports a failure after the response was committed.
// The status line is already on the wire, so the only remaining signal is
// tearing down the transport.
type StreamAbortedError struct {
	Err error
}

func (e *StreamAbortedError) Error() string {
	return fmt.Sprintf("stream aborted after headers were sent: %v", e.Err)
}

func (e *StreamAbortedError) Unwrap() error { return e.Err }

// StreamForwardOptions customizes ForwardStream.
type StreamForwardOptions struct {
	// SSE frames chunks as "data: <json string>" events ending with [DONE].
	// Otherwise chunks are written as plain text.
	SSE bool
	// Provider is the display name used when normalizing a mid-stream error
	// for the SSE error event.
	Provider string
	// OnChunk observes each chunk after it was written.
	OnChunk func(chunk string)
	// OnComplete runs once after the source is exhausted. An error fails the
	// request even though every chunk was already delivered.
	OnComplete func(ctx context.Context) error
}

// ForwardStream relays stream to the client one chunk at a time: pull,
// write, flush, repeat. Headers are committed by the first non-empty chunk,
// so an error returned before that point can still be written as JSON by
// the caller. Errors after that point are returned as *StreamAbortedError.
// The stream is always closed.
func (h *BaseAPIHandler) ForwardStream(ctx context.Context, c *gin.Context, stream executor.TokenStream, opts StreamForwardOptions) error {
	defer func() {
		if errClose := stream.Close(); errClose != nil {
			log.Debugf("closing upstream stream: %v", errClose)
		}
	}()

	w := c.Writer
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		if opts.SSE {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Connection", "keep-alive")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	fail := func(err error) error {
		if !started {
			return err
		}
		if opts.SSE {
			msg := apperrors.Normalize(opts.Provider, err).Message
			if errWrite := WriteSSEError(w, msg); errWrite == nil {
				w.Flush()
			}
		}
		return &StreamAbortedError{Err: err}
	}

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
		if chunk == "" {
			continue
		}
		start()
		if opts.SSE {
			err = WriteSSEChunk(w, chunk)
		} else {
			_, err = io.WriteString(w, chunk)
		}
		if err != nil {
			return &StreamAbortedError{Err: err}
		}
		w.Flush()
		if opts.OnChunk != nil {
			opts.OnChunk(chunk)
		}
	}

	if opts.OnComplete != nil {
		if err := opts.OnComplete(ctx); err != nil {
			return fail(err)
		}
	}
	start()
	if opts.SSE {
		_ = WriteSSEDone(w)
	}
	w.Flush()
	return nil
}

// WantsSSE reports whether the client asked for SSE framing and the server
// allows it.
func WantsSSE(c *gin.Context, rt *Runtime) bool {
	if rt != nil && rt.Cfg != nil && !rt.Cfg.Streaming.SSEAllowed() {
		return false
	}
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/event-stream")
}

// AbortStream tears down a committed response. net/http closes the
// connection without logging when a handler panics with ErrAbortHandler.
func AbortStream(c *gin.Context, err error) {
	fields := log.Fields{
		"request_id": c.GetString(logging.ContextKeyRequestID),
		"provider":   c.GetString(logging.ContextKeyProvider),
		"model":      c.GetString(logging.ContextKeyModel),
	}
	if errors.Is(err, context.Canceled) {
		log.WithFields(fields).Debug("client went away mid-stream")
	} else {
		log.WithFields(fields).Warnf("aborting stream: %v", err)
	}
	panic(http.ErrAbortHandler)
}
