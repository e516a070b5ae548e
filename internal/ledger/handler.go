package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"proledger/internal/api"
	"proledger/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

type GrantRequest struct {
	AccountID     int    `json:"account_id" binding:"required" validate:"required,gte=1"`
	Amount        int    `json:"amount" binding:"required" validate:"required,gte=1"`
	Description   string `json:"description" binding:"required" validate:"required,max=255"`
	ExpiresInDays int    `json:"expires_in_days" validate:"gte=0"`
}

// GetBalance godoc
// @Summary      Get credit balance
// @Description  Returns the caller's balance, creating it with the welcome bonus on first access.
// @Tags         credits
// @Produce      json
// @Success      200  {object}  Balance
// @Failure      401  {object}  gin.H
// @Failure      500  {object}  gin.H
// @Security     BearerAuth
// @Router       /credits/balance [get]
func (h *Handler) GetBalance(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	bal, err := h.engine.GetOrCreateBalance(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, bal)
}

// GetHistory godoc
// @Summary      Get ledger history
// @Description  Returns the caller's ledger entries, newest first.
// @Tags         credits
// @Produce      json
// @Param        limit   query  int  false  "Page size"   default(50)
// @Param        offset  query  int  false  "Page offset" default(0)
// @Success      200  {array}   Entry
// @Failure      401  {object}  gin.H
// @Failure      500  {object}  gin.H
// @Security     BearerAuth
// @Router       /credits/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.engine.History(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// Grant godoc
// @Summary      Grant bonus credits
// @Description  Admin-only grant of free-class credits with an optional expiry window.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        request  body  GrantRequest  true  "Grant parameters"
// @Success      200  {object}  Balance
// @Failure      400  {object}  gin.H
// @Failure      500  {object}  gin.H
// @Security     BearerAuth
// @Router       /admin/credits/grant [post]
func (h *Handler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if verrs := api.ValidateStruct(req); len(verrs) > 0 {
		api.RespondWithValidationErrors(c, verrs)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	bal, _, err := h.engine.AddCredits(
		c.Request.Context(),
		req.AccountID,
		req.Amount,
		ClassFree,
		req.Description,
		expiresAt,
		Metadata{"granted_by": "admin"},
	)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to grant credits"})
		return
	}

	c.JSON(http.StatusOK, bal)
}
