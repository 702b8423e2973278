package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nezaj/instant-stripe-credits/internal/ledger"
)

type stubGenService struct {
	generateErr error
}

func (s *stubGenService) Generate(ctx context.Context, userID int, prompt string) (*Generation, error) {
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &Generation{ID: 1, UserID: userID, Prompt: prompt, Output: "out"}, nil
}

func (s *stubGenService) ListByUser(ctx context.Context, userID int, limit, offset int) ([]Generation, error) {
	return []Generation{{ID: 1, UserID: userID}}, nil
}

func setupGenRouter(svc Service, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) { c.Set("user_id", 42) })
	}
	h := NewHandler(svc)
	r.POST("/generations", h.Create)
	r.GET("/generations", h.List)
	return r
}

func TestCreate_Success(t *testing.T) {
	router := setupGenRouter(&stubGenService{}, true)

	body, _ := json.Marshal(CreateRequest{Prompt: "a red fox"})
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var g Generation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, 42, g.UserID)
}

func TestCreate_InsufficientCreditsIs402(t *testing.T) {
	router := setupGenRouter(&stubGenService{generateErr: ledger.ErrInsufficientCredits}, true)

	body, _ := json.Marshal(CreateRequest{Prompt: "a red fox"})
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["insufficient_credits"])
}

func TestCreate_RequiresAuth(t *testing.T) {
	router := setupGenRouter(&stubGenService{}, false)

	body, _ := json.Marshal(CreateRequest{Prompt: "a red fox"})
	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreate_MissingPrompt(t *testing.T) {
	router := setupGenRouter(&stubGenService{}, true)

	req := httptest.NewRequest(http.MethodPost, "/generations", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestList(t *testing.T) {
	router := setupGenRouter(&stubGenService{}, true)

	req := httptest.NewRequest(http.MethodGet, "/generations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var gens []Generation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gens))
	assert.Len(t, gens, 1)
}
