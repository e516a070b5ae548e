package claim

import (
	"errors"
	"net/http"

	"proledger/internal/api"
	"proledger/internal/auth"
	"proledger/internal/ledger"
	"proledger/internal/pricing"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// ClaimLead godoc
// @Summary      Claim a lead
// @Description  Prices the lead from its bracket and urgency, spends the credits and records the claim.
// @Tags         leads
// @Accept       json
// @Produce      json
// @Param        leadID   path      string        true  "Lead id"
// @Param        request  body      ClaimRequest  true  "Lead pricing inputs"
// @Success      200      {object}  ClaimResponse
// @Failure      400      {object}  gin.H
// @Failure      401      {object}  gin.H
// @Failure      402      {object}  api.InsufficientCreditsResponse
// @Failure      409      {object}  gin.H
// @Failure      500      {object}  gin.H
// @Security     BearerAuth
// @Router       /leads/{leadID}/claim [post]
func (h *Handler) ClaimLead(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	leadID := c.Param("leadID")
	if leadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lead id required"})
		return
	}

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.service.ClaimLead(c.Request.Context(), accountID, leadID, req.PriceBracket, req.UrgencyTier)
	if err != nil {
		var insufficient *ledger.InsufficientCreditsError
		switch {
		case errors.As(err, &insufficient):
			// Precise, actionable message for the professional.
			c.JSON(http.StatusPaymentRequired, api.InsufficientCreditsResponse{
				Error: insufficient.Error(),
				Have:  insufficient.Have,
				Need:  insufficient.Need,
			})
		case errors.Is(err, pricing.ErrUnknownBracket), errors.Is(err, pricing.ErrUnknownUrgency):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ErrAlreadyClaimed):
			c.JSON(http.StatusConflict, gin.H{"error": "lead already claimed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim lead"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListClaims godoc
// @Summary      List own lead claims
// @Tags         leads
// @Produce      json
// @Success      200  {array}   Claim
// @Failure      401  {object}  gin.H
// @Failure      500  {object}  gin.H
// @Security     BearerAuth
// @Router       /claims [get]
func (h *Handler) ListClaims(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	claims, err := h.service.ListClaims(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load claims"})
		return
	}

	c.JSON(http.StatusOK, claims)
}
