package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nezaj/instant-stripe-credits/internal/auth"
	"github.com/nezaj/instant-stripe-credits/internal/logger"
	"github.com/nezaj/instant-stripe-credits/internal/payment"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service       Service
	webhookSecret string
}

func NewHandler(service Service, webhookSecret string) *Handler {
	return &Handler{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// CreateCheckout godoc
// @Summary      Start a credit pack purchase
// @Description  Creates a processor checkout session and returns the redirect URL.
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  CheckoutResponse
// @Failure      401  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /billing/checkout [post]
func (h *Handler) CreateCheckout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	resp, err := h.service.CreateCheckout(c.Request.Context(), userID)
	if err != nil {
		logger.Error("checkout creation failed", "user_id", userID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to start checkout"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Webhook godoc
// @Summary      Payment processor notifications
// @Description  Verifies the signature, fulfills completed checkouts, acknowledges everything else.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  api.MessageResponse
// @Failure      400  {object}  api.ErrorResponse
// @Failure      502  {object}  api.ErrorResponse
// @Router       /webhooks/payment [post]
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	// Nothing in the payload is trusted before this passes.
	sigHeader := c.GetHeader("Stripe-Signature")
	if err := payment.VerifySignature(payload, sigHeader, h.webhookSecret, payment.DefaultSignatureTolerance); err != nil {
		logger.Error("webhook signature rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	event, err := payment.ParseEvent(payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	// Only completed checkouts matter. Everything else is acknowledged so the
	// processor stops redelivering it.
	if event.Type != payment.EventCheckoutCompleted {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), event.Data.Object.ID, SourceWebhook)
	if err != nil {
		// A session without payee metadata, or one the processor no longer
		// knows, will never fulfill. Acknowledge it so the processor stops
		// redelivering; retries cannot change the outcome.
		if errors.Is(err, ErrMissingPayee) || errors.Is(err, payment.ErrSessionNotFound) {
			logger.Warn("webhook event not fulfillable, acknowledged", "session_id", event.Data.Object.ID, "error", err)
			c.JSON(http.StatusOK, gin.H{"message": "ignored"})
			return
		}
		// Transient failure: a non-2xx tells the processor to redeliver.
		logger.Error("webhook reconcile failed", "session_id", event.Data.Object.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "fulfillment failed, retry expected"})
		return
	}

	// Business no-ops (already fulfilled, unpaid) are acknowledged with 200,
	// otherwise the processor would retry already-handled events forever.
	c.JSON(http.StatusOK, gin.H{"message": string(result)})
}

// Sync godoc
// @Summary      Eager fulfillment after checkout redirect
// @Description  Reconciles the given session immediately instead of waiting for the webhook.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      SyncRequest  true  "Checkout session id"
// @Success      200      {object}  SyncResponse
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      502      {object}  api.ErrorResponse
// @Router       /billing/sync [post]
func (h *Handler) Sync(c *gin.Context) {
	if _, ok := auth.GetUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	// The session id names the event to reconcile; the payee comes from the
	// session's own metadata, never from the caller.
	result, err := h.service.Reconcile(c.Request.Context(), req.SessionID, SourceSync)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		logger.Error("sync reconcile failed", "session_id", req.SessionID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "fulfillment failed, please retry"})
		return
	}

	c.JSON(http.StatusOK, SyncResponse{Result: result})
}

// GetBalance godoc
// @Summary      Current credit balance
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ledger.Balance
// @Failure      401  {object}  api.ErrorResponse
// @Router       /billing/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	b, err := h.service.Balance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, b)
}

// ListHistory godoc
// @Summary      Ledger history
// @Description  The caller sees only their own entries.
// @Tags         billing
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "Page size"
// @Param        offset  query  int  false  "Page offset"
// @Success      200  {array}   ledger.Entry
// @Failure      401  {object}  api.ErrorResponse
// @Router       /billing/history [get]
func (h *Handler) ListHistory(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.service.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, entries)
}
