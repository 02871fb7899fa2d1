package routes

import (
	"github.com/BerniceZTT/crm_pool/controllers"
	"github.com/BerniceZTT/crm_pool/middleware"
	"github.com/BerniceZTT/crm_pool/models"

	"github.com/gin-gonic/gin"
)

// RegisterLeadRoutes 注册线索与跟进记录路由
func RegisterLeadRoutes(router *gin.Engine, h *controllers.Handler) {
	leadGroup := router.Group("/api/leads")
	leadGroup.Use(middleware.AuthMiddleware())

	read := middleware.PermissionMiddleware("leads", "read")
	update := middleware.PermissionMiddleware("leads", "update")

	leadGroup.POST("", middleware.PermissionMiddleware("leads", "create"), h.CreateLead)
	leadGroup.POST("/check-duplicates", read, h.CheckDuplicates(models.KindLead))
	leadGroup.GET("/due-follow-ups", read, h.GetDueFollowUps)
	leadGroup.GET("/:id", read, h.GetLeadDetail)
	leadGroup.DELETE("/:id", middleware.PermissionMiddleware("leads", "delete"), h.DeleteRecord(models.KindLead))
	leadGroup.PUT("/:id/status", update, h.UpdateLeadStatus)
	leadGroup.POST("/:id/convert", middleware.PermissionMiddleware("leads", "convert"), h.ConvertLead)
	leadGroup.POST("/:id/contact", update, h.TouchContact(models.KindLead))
	leadGroup.GET("/:id/follow-ups", read, h.GetFollowUps)
	leadGroup.POST("/:id/follow-ups", update, h.AddFollowUp)
	leadGroup.GET("/:id/history", read, h.GetHistory(models.KindLead))
}
