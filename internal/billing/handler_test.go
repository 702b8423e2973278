package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nezaj/instant-stripe-credits/internal/ledger"
	"github.com/nezaj/instant-stripe-credits/internal/payment"
)

const testWebhookSecret = "whsec_handler_test"

// stubService records reconcile calls and returns canned results.
type stubService struct {
	reconcileResult Result
	reconcileErr    error
	calls           []string
}

func (s *stubService) CreateCheckout(ctx context.Context, userID int) (*CheckoutResponse, error) {
	return &CheckoutResponse{SessionID: "cs_stub", URL: "https://pay.example/cs_stub"}, nil
}

func (s *stubService) Reconcile(ctx context.Context, sessionID, source string) (Result, error) {
	s.calls = append(s.calls, fmt.Sprintf("%s:%s", source, sessionID))
	return s.reconcileResult, s.reconcileErr
}

func (s *stubService) Balance(ctx context.Context, userID int) (*ledger.Balance, error) {
	return &ledger.Balance{UserID: userID, Credits: 7}, nil
}

func (s *stubService) History(ctx context.Context, userID int, limit, offset int) ([]ledger.Entry, error) {
	return []ledger.Entry{}, nil
}

func setupRouter(h *Handler, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set("user_id", 42)
		})
	}
	r.POST("/billing/checkout", h.CreateCheckout)
	r.POST("/billing/sync", h.Sync)
	r.POST("/webhooks/payment", h.Webhook)
	r.GET("/billing/balance", h.GetBalance)
	return r
}

func signedWebhookBody(t *testing.T, eventType, sessionID string) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_1",
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{"id": sessionID, "status": "paid"},
		},
	})
	require.NoError(t, err)
	return payload, payment.SignPayload(payload, testWebhookSecret, time.Now())
}

func TestWebhook_CompletedCheckoutReconciles(t *testing.T) {
	svc := &stubService{reconcileResult: ResultGranted}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	payload, sig := signedWebhookBody(t, payment.EventCheckoutCompleted, "cs_9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"webhook:cs_9"}, svc.calls)
}

func TestWebhook_AlreadyFulfilledStillAcks(t *testing.T) {
	// A 200 on no-ops is what stops the processor from redelivering forever.
	svc := &stubService{reconcileResult: ResultAlreadyFulfilled}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	payload, sig := signedWebhookBody(t, payment.EventCheckoutCompleted, "cs_9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	svc := &stubService{reconcileResult: ResultGranted}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	payload, _ := signedWebhookBody(t, payment.EventCheckoutCompleted, "cs_9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", payment.SignPayload(payload, "whsec_wrong", time.Now()))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.calls, "unverified payloads never reach fulfillment")
}

func TestWebhook_IgnoresOtherEventTypes(t *testing.T) {
	svc := &stubService{reconcileResult: ResultGranted}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	payload, sig := signedWebhookBody(t, "invoice.paid", "cs_9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.calls)
}

func TestWebhook_TransientFailureAsksForRedelivery(t *testing.T) {
	svc := &stubService{reconcileErr: assert.AnError}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	payload, sig := signedWebhookBody(t, payment.EventCheckoutCompleted, "cs_9")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sig)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestWebhook_PermanentFailureStillAcks(t *testing.T) {
	// A session with no payee, or one the processor has forgotten, cannot be
	// fulfilled by any number of retries. Answering non-2xx here would make
	// the processor redeliver it forever.
	cases := []struct {
		name string
		err  error
	}{
		{"missing payee", ErrMissingPayee},
		{"wrapped missing payee", fmt.Errorf("resolve payee: %w", ErrMissingPayee)},
		{"unknown session", fmt.Errorf("resolve session cs_9: %w", payment.ErrSessionNotFound)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{reconcileErr: tc.err}
			router := setupRouter(NewHandler(svc, testWebhookSecret), false)

			payload, sig := signedWebhookBody(t, payment.EventCheckoutCompleted, "cs_9")
			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", sig)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestSync_RequiresAuth(t *testing.T) {
	svc := &stubService{reconcileResult: ResultGranted}
	router := setupRouter(NewHandler(svc, testWebhookSecret), false)

	body, _ := json.Marshal(SyncRequest{SessionID: "cs_9"})
	req := httptest.NewRequest(http.MethodPost, "/billing/sync", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.calls)
}

func TestSync_ReconcilesSession(t *testing.T) {
	svc := &stubService{reconcileResult: ResultAlreadyFulfilled}
	router := setupRouter(NewHandler(svc, testWebhookSecret), true)

	body, _ := json.Marshal(SyncRequest{SessionID: "cs_9"})
	req := httptest.NewRequest(http.MethodPost, "/billing/sync", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sync:cs_9"}, svc.calls)

	var resp SyncResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ResultAlreadyFulfilled, resp.Result)
}

func TestSync_MissingSessionID(t *testing.T) {
	svc := &stubService{reconcileResult: ResultGranted}
	router := setupRouter(NewHandler(svc, testWebhookSecret), true)

	req := httptest.NewRequest(http.MethodPost, "/billing/sync", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSync_UnknownSession(t *testing.T) {
	svc := &stubService{reconcileErr: fmt.Errorf("resolve session: %w", payment.ErrSessionNotFound)}
	router := setupRouter(NewHandler(svc, testWebhookSecret), true)

	body, _ := json.Marshal(SyncRequest{SessionID: "cs_missing"})
	req := httptest.NewRequest(http.MethodPost, "/billing/sync", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBalance(t *testing.T) {
	svc := &stubService{}
	router := setupRouter(NewHandler(svc, testWebhookSecret), true)

	req := httptest.NewRequest(http.MethodGet, "/billing/balance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var b ledger.Balance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	assert.Equal(t, int64(7), b.Credits)
}
