// Package assistants provides GET /assistants/openai.
package assistants

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/api/middleware"
	"github.com/multichat/chatproxy/internal/config"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/multichat/chatproxy/sdk/api/handlers"
)

// AssistantsAPIHandler lists the OpenAI assistants available to the caller.
type AssistantsAPIHandler struct {
	*handlers.BaseAPIHandler
}

func NewAssistantsAPIHandler(apiHandlers *handlers.BaseAPIHandler) *AssistantsAPIHandler {
	return &AssistantsAPIHandler{BaseAPIHandler: apiHandlers}
}

// List handles GET /assistants/openai. It requires a session so the
// caller's own OpenAI key can be used when the server has none.
func (h *AssistantsAPIHandler) List(c *gin.Context) {
	rt := h.Runtime()
	client := rt.Executors.Assistants()
	handlers.SetRequestLabels(c, config.ProviderOpenAI, "assistants")

	profile, err := rt.Gate.Lookup(c.Request.Context(), session.UserID(c))
	if err != nil {
		h.WriteErrorResponse(c, client.DisplayName(), err)
		return
	}
	ctx, cancel := h.GetContextWithCancel(c, rt)
	defer cancel()

	middleware.RecordProviderRequest(config.ProviderOpenAI, "assistants")
	list, err := client.List(ctx, handlers.ResolveCredential(rt.Executors.AssistantsCredential(), profile))
	if err != nil {
		h.WriteErrorResponse(c, client.DisplayName(), err)
		return
	}
	if list == nil {
		list = []json.RawMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"assistants": list})
}
