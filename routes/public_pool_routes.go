package routes

import (
	"github.com/BerniceZTT/crm_pool/controllers"
	"github.com/BerniceZTT/crm_pool/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterPublicPoolRoutes 注册公海池相关路由
func RegisterPublicPoolRoutes(router *gin.Engine, h *controllers.Handler) {
	poolGroup := router.Group("/api/pool")
	poolGroup.Use(middleware.AuthMiddleware())

	read := middleware.PermissionMiddleware("pool", "read")
	claim := middleware.PermissionMiddleware("pool", "claim")
	assign := middleware.PermissionMiddleware("pool", "assign")

	poolGroup.GET("/stats", read, h.GetStats)
	poolGroup.POST("/sweep", middleware.PermissionMiddleware("pool", "sweep"), h.RunSweep)
	poolGroup.GET("/eviction-config", read, h.GetEvictionConfig)
	poolGroup.PUT("/eviction-config", middleware.PermissionMiddleware("pool", "configure"), h.UpdateEvictionConfig)

	poolGroup.GET("/:kind", read, h.GetPublicPool)
	poolGroup.POST("/:kind/move-to-pool", middleware.PermissionMiddleware("pool", "release"), h.MoveToPool)
	poolGroup.POST("/:kind/batch-claim", claim, h.BatchClaim)
	poolGroup.POST("/:kind/batch-assign", assign, h.BatchAssign)
	poolGroup.POST("/:kind/:id/claim", claim, h.ClaimRecord)
	poolGroup.POST("/:kind/:id/assign", assign, h.AssignRecord)
	poolGroup.POST("/:kind/:id/transfer", middleware.PermissionMiddleware("pool", "transfer"), h.TransferRecord)
}
