package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/frostclub/internal/audit/domain"
	obscontext "github.com/smallbiznis/frostclub/internal/observability/context"
	paymentdomain "github.com/smallbiznis/frostclub/internal/payment/domain"
	"github.com/smallbiznis/frostclub/internal/payment/webhook"
)

const stripeSignatureHeader = "Stripe-Signature"

type verifyPaymentRequest struct {
	SessionID string `json:"session_id"`
}

// VerifyPayment reconciles a checkout session on return from the hosted
// payment page. It is safe to call any number of times.
func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		AbortWithError(c, paymentdomain.ErrInvalidSessionID)
		return
	}

	result, err := s.reconcileSvc.Verify(c.Request.Context(), sessionID, paymentdomain.SourceVerify)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ReceiveStripeWebhook acknowledges only after the event was handled; any
// dispatch failure answers 500 so the processor redelivers.
func (s *Server) ReceiveStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhook.MaxPayloadBytes+1))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeWebhook), paymentdomain.ProviderStripe)
	if err := s.webhookSvc.Receive(ctx, payload, c.GetHeader(stripeSignatureHeader)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (s *Server) WebhookStatus(c *gin.Context) {
	status, err := s.webhookSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// WebhookSelfTest signs and parses a synthetic event without dispatching it.
func (s *Server) WebhookSelfTest(c *gin.Context) {
	result, err := s.webhookSvc.SelfTest(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
