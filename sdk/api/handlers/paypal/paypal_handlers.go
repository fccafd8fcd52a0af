// Package paypal provides the subscription endpoints: the in-app approve and
// check calls and the PayPal webhook receiver.
package paypal

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/multichat/chatproxy/internal/billing"
	apperrors "github.com/multichat/chatproxy/internal/errors"
	"github.com/multichat/chatproxy/internal/session"
	"github.com/multichat/chatproxy/internal/store"
	"github.com/multichat/chatproxy/sdk/api/handlers"
	log "github.com/sirupsen/logrus"
)

// maxWebhookBytes bounds a notification body.
const maxWebhookBytes = 1 << 20

// PayPalAPIHandler serves /paypal/*.
type PayPalAPIHandler struct {
	*handlers.BaseAPIHandler
	processor *billing.Processor
}

// NewPayPalAPIHandler builds the handler over the shared profile store.
func NewPayPalAPIHandler(apiHandlers *handlers.BaseAPIHandler) *PayPalAPIHandler {
	return &PayPalAPIHandler{
		BaseAPIHandler: apiHandlers,
		processor:      billing.NewProcessor(apiHandlers.Profiles),
	}
}

type tierResponse struct {
	Subscribe store.Tier `json:"subscribe"`
}

// Approve handles POST /paypal/approve. A NONE profile becomes PENDING until
// the sale webhook arrives.
func (h *PayPalAPIHandler) Approve(c *gin.Context) {
	userID := session.UserID(c)
	if userID == "" {
		h.WriteErrorResponse(c, "PayPal", apperrors.Unauthenticated(nil))
		return
	}
	tier, err := h.processor.Approve(c.Request.Context(), userID)
	if err != nil {
		h.WriteErrorResponse(c, "PayPal", apperrors.ProfileUpdate(err))
		return
	}
	log.WithField("user_id", userID).Infof("paypal approve: tier %s", tier)
	c.JSON(http.StatusOK, tierResponse{Subscribe: tier})
}

// Check handles POST /paypal/check.
func (h *PayPalAPIHandler) Check(c *gin.Context) {
	userID := session.UserID(c)
	if userID == "" {
		h.WriteErrorResponse(c, "PayPal", apperrors.Unauthenticated(nil))
		return
	}
	tier, err := h.processor.Check(c.Request.Context(), userID)
	if err != nil {
		h.WriteErrorResponse(c, "PayPal", apperrors.ProfileLookup(err))
		return
	}
	c.JSON(http.StatusOK, tierResponse{Subscribe: tier})
}

// Webhook handles POST /paypal/webhook. Processing outcomes, including
// failures, are acknowledged with 200 so PayPal does not retry them; only
// unreadable or unverified notifications are rejected.
func (h *PayPalAPIHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, billing.Outcome{ErrorMessage: "failed to read notification"}.JSON())
		return
	}
	if v := h.Runtime().Verifier; v != nil {
		if errVerify := v.Verify(c.Request.Context(), c.Request.Header, body); errVerify != nil {
			status := http.StatusBadGateway
			if errors.Is(errVerify, billing.ErrInvalidSignature) {
				status = http.StatusUnauthorized
			}
			log.Warnf("paypal webhook rejected: %v", errVerify)
			c.JSON(status, billing.Outcome{ErrorMessage: "notification could not be verified"}.JSON())
			return
		}
	}
	ev, err := billing.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, billing.Outcome{ErrorMessage: err.Error()}.JSON())
		return
	}
	c.JSON(http.StatusOK, h.processor.HandleEvent(c.Request.Context(), ev).JSON())
}
