package assets

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

type AssetHandler struct {
	s *AssetService
}

func NewAssetHandler(s *AssetService) *AssetHandler {
	return &AssetHandler{s: s}
}

func (h *AssetHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/assets", h.GetAssets)
	router.GET("/assets/:id", h.GetAsset)
	router.POST("/assets", security.Authorize(roles.CreateAsset), h.CreateAsset)
	router.POST("/assets/legacy", security.Authorize(roles.CreateAsset), h.CreateLegacyAsset)
	router.DELETE("/assets/:id", security.Authorize(roles.DeleteAsset), h.RemoveAsset)

	router.POST("/assets/:id/submit", security.Authorize(roles.SubmitAsset), h.transition(h.s.SubmitForVerification))
	router.POST("/assets/:id/verify", security.Authorize(roles.VerifyAsset), h.transition(h.s.VerifyAsset))
	router.POST("/assets/:id/authorize", security.Authorize(roles.AuthorizeAsset), h.transition(h.s.AuthorizeAsset))
	router.POST("/assets/:id/reject", h.RejectAsset)

	router.POST("/assets/:id/consume", security.Authorize(roles.AdjustQuantity), h.adjust(h.s.ConsumeQuantity))
	router.POST("/assets/:id/restore", security.Authorize(roles.AdjustQuantity), h.adjust(h.s.RestoreQuantity))

	router.POST("/procurement-orders/:id/generate-assets", security.Authorize(roles.GenerateAssets), h.GenerateFromOrder)
	router.POST("/procurement-orders/:id/items/:item_id/generate-assets", security.Authorize(roles.GenerateAssets), h.GenerateFromItem)
}

func (h *AssetHandler) GetAssets(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var filter AssetFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters", "details": err.Error()})
		return
	}

	assets, err := h.s.ListAssets(c.Request.Context(), actor, filter)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, assets)
}

func (h *AssetHandler) GetAsset(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	asset, err := h.s.GetAsset(c.Request.Context(), actor, id)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

func (h *AssetHandler) CreateAsset(c *gin.Context) {
	h.create(c, h.s.CreateAsset)
}

func (h *AssetHandler) CreateLegacyAsset(c *gin.Context) {
	h.create(c, h.s.CreateLegacyAsset)
}

func (h *AssetHandler) create(c *gin.Context, create func(context.Context, models.Actor, CreateAssetInput) (*models.Asset, error)) {
	actor, _ := security.ActorFromContext(c)

	var req CreateAssetInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	asset, err := create(c.Request.Context(), actor, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, asset)
}

func (h *AssetHandler) RemoveAsset(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	if err := h.s.DeleteAsset(c.Request.Context(), actor, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Asset deleted successfully"})
}

func (h *AssetHandler) transition(fn func(context.Context, models.Actor, int) (*models.Asset, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := security.ActorFromContext(c)

		id, ok := bindID(c, "id")
		if !ok {
			return
		}

		asset, err := fn(c.Request.Context(), actor, id)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, asset)
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *AssetHandler) RejectAsset(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, ok := bindID(c, "id")
	if !ok {
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	asset, err := h.s.RejectAsset(c.Request.Context(), actor, id, req.Reason)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *AssetHandler) adjust(fn func(context.Context, models.Actor, int, int) (*QuantityResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := security.ActorFromContext(c)

		id, ok := bindID(c, "id")
		if !ok {
			return
		}

		var req quantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
			return
		}

		result, err := fn(c.Request.Context(), actor, id, req.Quantity)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func (h *AssetHandler) GenerateFromItem(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	orderID, ok := bindID(c, "id")
	if !ok {
		return
	}
	itemID, ok := bindID(c, "item_id")
	if !ok {
		return
	}

	result, err := h.s.GenerateAssetsFromProcurementItem(c.Request.Context(), actor, orderID, itemID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *AssetHandler) GenerateFromOrder(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	orderID, ok := bindID(c, "id")
	if !ok {
		return
	}

	result, err := h.s.GenerateAssetsFromProcurementOrder(c.Request.Context(), actor, orderID)
	if err != nil {
		if result != nil && len(result.Items) > 0 {
			c.AbortWithStatusJSON(http.StatusMultiStatus, gin.H{"error": err.Error(), "result": result})
			return
		}
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func bindID(c *gin.Context, param string) (int, bool) {
	id, err := strconv.Atoi(c.Param(param))
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + ", value must be a positive integer"})
		return 0, false
	}
	return id, true
}
