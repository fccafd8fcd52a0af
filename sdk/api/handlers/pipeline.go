package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/api/middleware"
	"github.com/multichat/chatproxy/internal/runtime/executor"
	"github.com/multichat/chatproxy/internal/usage"
	log "github.com/sirupsen/logrus"
)

// ExecuteChat runs one chat request against exec:
// parse, authorize, resolve the credential, open the upstream stream, relay
// it, and debit a free question once the stream completed. Every failure
// before the first relayed byte is normalized and written as JSON; later
// failures abort the connection.
func (h *BaseAPIHandler) ExecuteChat(c *gin.Context, rt *Runtime, exec executor.ChatExecutor) {
	provider := exec.DisplayName()
	SetRequestLabels(c, exec.Identifier(), "")
	req, err := ParseChatRequest(c)
	if err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}
	SetRequestLabels(c, exec.Identifier(), req.Model)

	profile, decision, err := h.Authorize(c, rt, exec.Identifier(), req.Model)
	if err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}
	apiKey := rt.CredentialFor(exec.Identifier(), profile)

	ctx, cancel := h.GetContextWithCancel(c, rt)
	defer cancel()

	middleware.RecordProviderRequest(exec.Identifier(), req.Model)
	stream, err := exec.ExecuteStream(ctx, apiKey, req)
	if err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}

	var outputTokens int64
	err = h.ForwardStream(ctx, c, stream, StreamForwardOptions{
		SSE:      WantsSSE(c, rt),
		Provider: provider,
		OnChunk: func(chunk string) {
			outputTokens += usage.CountText(req.Model, chunk)
		},
		OnComplete: func(ctx context.Context) error {
			return h.Commit(ctx, rt, decision)
		},
	})
	if err != nil {
		var aborted *StreamAbortedError
		if errors.As(err, &aborted) {
			AbortStream(c, aborted.Err)
			return
		}
		h.WriteErrorResponse(c, provider, err)
		return
	}
	middleware.RecordUsage(usage.EstimateChatTokens(exec.Identifier(), req.Model, req.Messages, outputTokens))
}

// ExecuteImage runs one image request: the generator is chosen by model,
// the result is optionally re-hosted, the quota decision is committed and
// the markdown image link is returned as plain text.
func (h *BaseAPIHandler) ExecuteImage(c *gin.Context, rt *Runtime) {
	SetRequestLabels(c, "image", "")
	req, err := ParseChatRequest(c)
	if err != nil {
		h.WriteErrorResponse(c, "Image", err)
		return
	}
	exec := rt.Executors.Image(req.Model)
	provider := exec.DisplayName()
	SetRequestLabels(c, exec.Identifier(), req.Model)

	profile, decision, err := h.Authorize(c, rt, exec.Identifier(), req.Model)
	if err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}
	apiKey := rt.CredentialFor(exec.Identifier(), profile)

	ctx, cancel := h.GetContextWithCancel(c, rt)
	defer cancel()

	middleware.RecordProviderRequest(exec.Identifier(), req.Model)
	result, err := exec.Generate(ctx, apiKey, req)
	if err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}
	if rt.Rehoster != nil {
		hosted, errRehost := rt.Rehoster.Rehost(ctx, result.URL)
		if errRehost != nil {
			log.Warnf("image re-hosting failed, returning provider url: %v", errRehost)
		} else {
			result.URL = hosted
		}
	}
	if err = h.Commit(ctx, rt, decision); err != nil {
		h.WriteErrorResponse(c, provider, err)
		return
	}
	middleware.RecordUsage(usage.EstimateImage(exec.Identifier(), result.Model, req.LastUserMessage()))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(result.Markdown()))
}
