package purchase

import (
	"errors"
	"net/http"

	"proledger/internal/auth"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// CreatePurchase godoc
// @Summary      Start a credit purchase
// @Description  Creates a pending purchase for a credit package and returns the payment reference for checkout.
// @Tags         purchases
// @Accept       json
// @Produce      json
// @Param        request  body      CreatePurchaseRequest  true  "Package choice"
// @Success      201      {object}  Purchase
// @Failure      400      {object}  gin.H
// @Failure      401      {object}  gin.H
// @Failure      500      {object}  gin.H
// @Security     BearerAuth
// @Router       /purchases [post]
func (h *Handler) CreatePurchase(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.service.CreatePurchase(c.Request.Context(), accountID, req.PackageID)
	if err != nil {
		if errors.Is(err, ErrUnknownPackage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown credit package"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create purchase"})
		return
	}

	c.JSON(http.StatusCreated, p)
}

// ListPurchases godoc
// @Summary      List own purchases
// @Tags         purchases
// @Produce      json
// @Success      200  {array}   Purchase
// @Failure      401  {object}  gin.H
// @Failure      500  {object}  gin.H
// @Security     BearerAuth
// @Router       /purchases [get]
func (h *Handler) ListPurchases(c *gin.Context) {
	accountID, ok := auth.GetAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account not authenticated"})
		return
	}

	purchases, err := h.service.ListPurchases(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load purchases"})
		return
	}

	c.JSON(http.StatusOK, purchases)
}

// ListPackages godoc
// @Summary      List credit packages
// @Tags         purchases
// @Produce      json
// @Success      200  {array}  Package
// @Router       /packages [get]
func (h *Handler) ListPackages(c *gin.Context) {
	packages := make([]Package, 0, len(Packages))
	for _, pkg := range Packages {
		packages = append(packages, pkg)
	}
	c.JSON(http.StatusOK, packages)
}

// PaymentWebhook godoc
// @Summary      Payment gateway callback
// @Description  Completes or fails the referenced purchase. Duplicate deliveries are ignored.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        request  body      WebhookRequest  true  "Gateway event"
// @Success      200      {object}  Purchase
// @Failure      400      {object}  gin.H
// @Failure      404      {object}  gin.H
// @Failure      500      {object}  gin.H
// @Router       /webhooks/payment [post]
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		p   *Purchase
		err error
	)
	switch req.Status {
	case "succeeded":
		p, err = h.service.CompletePurchase(c.Request.Context(), req.PaymentRef)
	case "failed":
		p, err = h.service.FailPurchase(c.Request.Context(), req.PaymentRef)
	case "refunded":
		p, err = h.service.RefundPurchase(c.Request.Context(), req.PaymentRef)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment status"})
		return
	}

	if err != nil {
		if errors.Is(err, ErrPurchaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		if errors.Is(err, ErrNotPending) || errors.Is(err, ErrNotCompleted) {
			c.JSON(http.StatusConflict, gin.H{"error": "purchase is in a conflicting state"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process payment event"})
		return
	}

	c.JSON(http.StatusOK, p)
}
