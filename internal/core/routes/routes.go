package routes

import (
	"sitewarehouse/internal/core/container"
	"sitewarehouse/internal/metrics"

	"github.com/gin-gonic/gin"
)

func RegisterProtectedRoutes(router *gin.Engine, container *container.Container) {
	protectedRoutes := router.Group("")
	protectedRoutes.Use(container.JWT.Middleware(), container.RateLimiter.Middleware())

	container.CategoryHandler.RegisterRoutes(protectedRoutes)
	container.AssetHandler.RegisterRoutes(protectedRoutes)
	container.ProcurementHandler.RegisterRoutes(protectedRoutes)
	container.TransferHandler.RegisterRoutes(protectedRoutes)
}

func RegisterUtilityRoutes(router *gin.Engine, container *container.Container) {
	router.GET("/health", container.HealthChecker.Handler())
	router.GET("/metrics", metrics.Handler())
}
