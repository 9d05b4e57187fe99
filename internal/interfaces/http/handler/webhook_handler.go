package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/shared"
	syncdomain "github.com/storesync/backend/internal/domain/sync"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
	"github.com/storesync/backend/internal/interfaces/http/dto"
)

// Webhook headers set by the storefront platform
const (
	SignatureHeader  = "X-Storefront-Hmac-Sha256"
	DeliveryIDHeader = "X-Storefront-Webhook-Id"
)

// dedupTTL covers the platform's redelivery horizon
const dedupTTL = 48 * time.Hour

// topicModes maps webhook topics (resource/action) to sync modes. Deletes
// route through import-one too: the reconciler observes the remote absence
// and detaches the mapping.
var topicModes = map[string]syncdomain.Mode{
	"products/create":  syncdomain.ModeImportOneProduct,
	"products/update":  syncdomain.ModeImportOneProduct,
	"orders/create":    syncdomain.ModeImportOneOrder,
	"orders/updated":   syncdomain.ModeImportOneOrder,
	"orders/paid":      syncdomain.ModeImportOneOrder,
	"customers/create": syncdomain.ModeImportOneCustomer,
	"customers/update": syncdomain.ModeImportOneCustomer,
}

// webhookPayload is the slice of the delivery body the intake cares about
type webhookPayload struct {
	AdminGraphQLAPIID string `json:"admin_graphql_api_id"`
}

// WebhookHandler receives platform webhooks, verifies their HMAC signature
// and enqueues the matching sync job. The HTTP response never waits for the
// sync to run: the only side effect is "job enqueued".
type WebhookHandler struct {
	BaseHandler
	secret   []byte
	enqueuer JobEnqueuer
	dedup    shared.DeliveryDedup
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
}

// NewWebhookHandler creates a webhook intake handler
func NewWebhookHandler(
	secret string,
	enqueuer JobEnqueuer,
	dedup shared.DeliveryDedup,
	metrics *telemetry.SyncMetrics,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		secret:   []byte(secret),
		enqueuer: enqueuer,
		dedup:    dedup,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterRoutes registers the webhook intake route
func (h *WebhookHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/:resource/:action", h.Receive)
}

// Receive handles one webhook delivery
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	if !h.verifySignature(body, c.GetHeader(SignatureHeader)) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("topic", webhookTopic(c)))
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeSignatureInvalid),
			dto.ErrCodeSignatureInvalid, "Webhook signature verification failed")
		return
	}

	topic := webhookTopic(c)
	ctx := c.Request.Context()

	mode, ok := topicModes[topic]
	if !ok {
		// Acknowledge unhandled topics so the platform stops redelivering
		h.logger.Debug("ignoring unhandled webhook topic", zap.String("topic", topic))
		h.Success(c, dto.WebhookAckResponse{Accepted: false})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeInvalidJSON), dto.ErrCodeInvalidJSON,
			"Webhook payload is not valid JSON")
		return
	}
	if payload.AdminGraphQLAPIID == "" {
		h.BadRequest(c, "Webhook payload is missing admin_graphql_api_id")
		return
	}

	if deliveryID := c.GetHeader(DeliveryIDHeader); deliveryID != "" && h.dedup != nil {
		fresh, err := h.dedup.MarkSeen(ctx, deliveryID, dedupTTL)
		if err != nil {
			// Dedup store trouble must not bounce deliveries; enqueue dedup
			// catches most duplicates anyway
			h.logger.Error("webhook dedup check failed",
				zap.String("delivery_id", deliveryID), zap.Error(err))
		} else if !fresh {
			if h.metrics != nil {
				h.metrics.RecordWebhookReceived(ctx, topic, true)
			}
			h.Success(c, dto.WebhookAckResponse{Accepted: false, Duplicate: true})
			return
		}
	}

	if _, _, err := h.enqueuer.Enqueue(ctx, mode, syncdomain.Selector{ExternalID: payload.AdminGraphQLAPIID}); err != nil {
		h.logger.Error("enqueueing webhook job failed",
			zap.String("topic", topic),
			zap.String("external_id", payload.AdminGraphQLAPIID),
			zap.Error(err))
		// Non-2xx triggers platform redelivery, which is what we want here
		h.InternalError(c, "Failed to enqueue sync job")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordWebhookReceived(ctx, topic, false)
	}
	h.logger.Info("webhook accepted",
		zap.String("topic", topic),
		zap.String("external_id", payload.AdminGraphQLAPIID),
		zap.String("mode", mode.String()))

	h.Success(c, dto.WebhookAckResponse{Accepted: true, Mode: mode.String()})
}

func webhookTopic(c *gin.Context) string {
	return c.Param("resource") + "/" + c.Param("action")
}

// verifySignature checks the base64 HMAC-SHA256 of the raw body against the
// shared secret
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
