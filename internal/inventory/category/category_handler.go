package category

import (
	"net/http"
	"strconv"

	"sitewarehouse/internal/middleware"
	"sitewarehouse/pkg/roles"
	"sitewarehouse/pkg/security"

	"github.com/gin-gonic/gin"
)

type CategoryHandler struct {
	s *CategoryService
}

func NewCategoryHandler(s *CategoryService) *CategoryHandler {
	return &CategoryHandler{s: s}
}

func (h *CategoryHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/categories", h.GetCategories)
	router.POST("/categories", security.Authorize(roles.ManageCategories), h.CreateCategory)
	router.DELETE("/categories/:id", security.Authorize(roles.ManageCategories), h.RemoveCategory)
}

func (h *CategoryHandler) GetCategories(c *gin.Context) {
	categories, err := h.s.ListCategories(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, categories)
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	var req CreateCategoryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	category, err := h.s.CreateCategory(c.Request.Context(), actor, req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) RemoveCategory(c *gin.Context) {
	actor, _ := security.ActorFromContext(c)

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
		return
	}

	if err := h.s.DeleteCategory(c.Request.Context(), actor, id); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
}
