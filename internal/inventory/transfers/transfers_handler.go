package transfers

import (
	"context"
	"net/http"
	"strconv"

	"sitewarehouse/internal/middleware"
	"sitewarehouse/pkg/models"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/security"

	"github.com/gin-gonic/gin"
)

type TransferHandler struct {
	s *TransferService
}

func NewTransferHandler(s *TransferService) *TransferHandler {
	return &TransferHandler{s: s}
}

func (h *TransferHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/transfers", security.Authorize(roles.InitiateTransfer), h.CreateTransfer)
	router.GET("/transfers", h.GetTransfers)
	router.GET("/transfers/:id", h.GetTransfer)

	router.POST("/transfers/:id/verify", security.Authorize(roles.VerifyTransfer), h.transition(h.s.VerifyTransfer))
	router.POST("/transfers/:id/approve", security.Authorize(roles.ApproveTransfer), h.transition(h.s.ApproveTransfer))
	router.POST("/transfers/:id/dispatch", security.Authorize(roles.DispatchTransfer), h.transition(h.s.DispatchTransfer))
	router.POST("/transfers/:id/receive", security.Authorize(roles.ReceiveTransfer), h.transition(h.s.ReceiveTransfer))
	router.POST("/transfers/:id/cancel", security.Authorize(roles.CancelTransfer), h.CancelTransfer)
	router.POST("/transfers/:id/return", security.Authorize(roles.DispatchTransfer), h.transition(h.s.InitiateReturn))
	router.POST("/transfers/:id/receive-return", security.Authorize(roles.ReceiveTransfer), h.transition(h.s.ReceiveReturn))
}

func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var req InitiateTransferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	transfer, err := h.s.InitiateTransfer(c.Request.Context(), actor, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, transfer)
}

func (h *TransferHandler) GetTransfers(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var filter TransferFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	transfers, err := h.s.ListTransfers(c.Request.Context(), actor, filter)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transfers)
}

func (h *TransferHandler) GetTransfer(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c)
	if !ok {
		return
	}

	transfer, err := h.s.GetTransfer(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transfer)
}

func (h *TransferHandler) transition(fn func(context.Context, models.Actor, int) (*models.Transfer, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := security.ActorFromContext(c)

		id, ok := bindID(c)
		if !ok {
			return
		}

		transfer, err := fn(c.Request.Context(), actor, id)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, transfer)
	}
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *TransferHandler) CancelTransfer(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c)
	if !ok {
		return
	}

	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
			return
		}
	}

	transfer, err := h.s.CancelTransfer(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, transfer)
}

func bindID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid id, value must be a positive integer"})
		return 0, false
	}
	return id, true
}
