package generation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nezaj/instant-stripe-credits/internal/api"
	"github.com/nezaj/instant-stripe-credits/internal/auth"
	"github.com/nezaj/instant-stripe-credits/internal/ledger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Create godoc
// @Summary      Create a generation
// @Description  Spends one credit and returns the resulting record. The account id comes from the session, never from the request body.
// @Tags         generations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateRequest  true  "Prompt"
// @Success      201      {object}  Generation
// @Failure      400      {object}  api.ErrorResponse
// @Failure      401      {object}  api.ErrorResponse
// @Failure      402      {object}  api.InsufficientCreditsResponse
// @Router       /generations [post]
func (h *Handler) Create(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	g, err := h.service.Generate(c.Request.Context(), userID, req.Prompt)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			// Expected, user-facing outcome: pay up, not a server error.
			c.JSON(http.StatusPaymentRequired, api.InsufficientCreditsResponse{
				Error:               "insufficient credits",
				InsufficientCredits: true,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create generation"})
		return
	}

	c.JSON(http.StatusCreated, g)
}

// List godoc
// @Summary      List own generations
// @Tags         generations
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query  int  false  "Page size"
// @Param        offset  query  int  false  "Page offset"
// @Success      200  {array}   Generation
// @Failure      401  {object}  api.ErrorResponse
// @Router       /generations [get]
func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	gens, err := h.service.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load generations"})
		return
	}

	c.JSON(http.StatusOK, gens)
}
