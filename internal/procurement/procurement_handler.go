package procurement

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

type ProcurementHandler struct {
	s *ProcurementService
}

func NewProcurementHandler(s *ProcurementService) *ProcurementHandler {
	return &ProcurementHandler{s: s}
}

func (h *ProcurementHandler) RegisterRoutes(router gin.IRouter) {
	router.POST("/procurement-orders", security.Authorize(roles.CreateProcurement), h.CreateOrder)
	router.GET("/procurement-orders/:id", h.GetOrder)
	router.GET("/procurement-orders/:id/tracking", h.GetTracking)
	router.GET("/procurement-orders/:id/generatable-items", h.GetGeneratableItems)
	router.GET("/procurement-discrepancies", h.ListDiscrepancies)

	router.POST("/procurement-orders/:id/submit", security.Authorize(roles.CreateProcurement), h.plain(h.s.SubmitProcurementOrder))
	router.POST("/procurement-orders/:id/approve", security.Authorize(roles.ApproveProcurement), h.plain(h.s.ApproveProcurementOrder))
	router.POST("/procurement-orders/:id/reject", security.Authorize(roles.ApproveProcurement), h.withReason(h.s.RejectProcurementOrder))
	router.POST("/procurement-orders/:id/cancel", h.withReason(h.s.CancelProcurementOrder))
	router.POST("/procurement-orders/:id/recalculate", security.Authorize(roles.CreateProcurement), h.plain(h.s.RecalculateOrderTotals))
	router.PATCH("/procurement-orders/:id/items/:item_id", security.Authorize(roles.CreateProcurement), h.UpdateItem)

	router.POST("/procurement-orders/:id/schedule-delivery", security.Authorize(roles.ManageDelivery), withInput(h.s.ScheduleDelivery))
	router.POST("/procurement-orders/:id/in-transit", security.Authorize(roles.ManageDelivery), withInput(h.s.MarkInTransit))
	router.POST("/procurement-orders/:id/delivered", withInput(h.s.MarkDelivered))
	router.POST("/procurement-orders/:id/receipt", security.Authorize(roles.ReceiveProcurement), withInput(h.s.ConfirmReceipt))
	router.POST("/procurement-orders/:id/discrepancy", security.Authorize(roles.ReceiveProcurement), withInput(h.s.ReportDiscrepancy))
	router.POST("/procurement-orders/:id/resolve-discrepancy", security.Authorize(roles.ResolveDiscrepancy), withInput(h.s.ResolveDiscrepancy))
	router.POST("/procurement-orders/:id/items/:item_id/resolve-discrepancy", security.Authorize(roles.ResolveDiscrepancy), h.ResolveItemDiscrepancy)
}

func (h *ProcurementHandler) CreateOrder(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var req CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	order, err := h.s.CreateProcurementOrder(c.Request.Context(), actor, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *ProcurementHandler) GetOrder(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	order, err := h.s.GetProcurementOrder(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *ProcurementHandler) GetTracking(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	entries, err := h.s.GetDeliveryTracking(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *ProcurementHandler) GetGeneratableItems(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	items, err := h.s.GetItemsAvailableForAssetGeneration(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (h *ProcurementHandler) ListDiscrepancies(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var filter DiscrepancyFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	rows, err := h.s.ListUnresolvedDiscrepancies(c.Request.Context(), actor, filter)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, rows)
}

func (h *ProcurementHandler) UpdateItem(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}
	itemID, ok := bindID(c, "item_id")
	if !ok {
		return
	}

	var req UpdateItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	order, err := h.s.UpdateProcurementItem(c.Request.Context(), actor, id, itemID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *ProcurementHandler) ResolveItemDiscrepancy(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}
	itemID, ok := bindID(c, "item_id")
	if !ok {
		return
	}

	var req ResolveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	order, err := h.s.ResolveItemDiscrepancy(c.Request.Context(), actor, id, itemID, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

type orderFunc func(context.Context, models.Actor, int) (*models.ProcurementOrder, error)

func (h *ProcurementHandler) plain(fn orderFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := security.ActorFromContext(c)

		id, ok := bindID(c, "id")
		if !ok {
			return
		}

		order, err := fn(c.Request.Context(), actor, id)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *ProcurementHandler) withReason(fn func(context.Context, models.Actor, int, string) (*models.ProcurementOrder, error)) gin.HandlerFunc {
	return withInput(func(ctx context.Context, actor models.Actor, id int, req reasonRequest) (*models.ProcurementOrder, error) {
		return fn(ctx, actor, id, req.Reason)
	})
}

// withInput binds the JSON body into T and passes it with the path id.
func withInput[T any](fn func(context.Context, models.Actor, int, T) (*models.ProcurementOrder, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := security.ActorFromContext(c)

		id, ok := bindID(c, "id")
		if !ok {
			return
		}

		var req T
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
				return
			}
		}

		order, err := fn(c.Request.Context(), actor, id, req)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

func bindID(c *gin.Context, param string) (int, bool) {
	id, err := strconv.Atoi(c.Param(param))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ", value must be a positive integer"})
		return 0, false
	}
	return id, true
}
