package routes

import (
	"github.com/BerniceZTT/crm_pool/controllers"
	"github.com/BerniceZTT/crm_pool/middleware"
	"github.com/BerniceZTT/crm_pool/models"

	"github.com/gin-gonic/gin"
)

// RegisterCustomerRoutes 注册客户相关路由
func RegisterCustomerRoutes(router *gin.Engine, h *controllers.Handler) {
	customerRoutes := router.Group("/api/customers")
	customerRoutes.Use(middleware.AuthMiddleware())

	read := middleware.PermissionMiddleware("customers", "read")
	create := middleware.PermissionMiddleware("customers", "create")
	update := middleware.PermissionMiddleware("customers", "update")

	customerRoutes.POST("", create, h.CreateCustomer)
	customerRoutes.POST("/check-duplicates", read, h.CheckDuplicates(models.KindCustomer))
	customerRoutes.POST("/merge", middleware.PermissionMiddleware("customers", "merge"), h.MergeCustomers)
	customerRoutes.GET("/:id", read, h.GetCustomerDetail)
	customerRoutes.DELETE("/:id", middleware.PermissionMiddleware("customers", "delete"), h.DeleteRecord(models.KindCustomer))
	customerRoutes.PUT("/:id/parent", update, h.SetParentCustomer)
	customerRoutes.GET("/:id/subsidiaries", read, h.GetSubsidiaries)
	customerRoutes.PUT("/:id/flags", update, h.SetCustomerFlags)
	customerRoutes.POST("/:id/share", update, h.ShareCustomer)
	customerRoutes.POST("/:id/contact", update, h.TouchContact(models.KindCustomer))
	customerRoutes.POST("/:id/order", update, h.RecordOrder)
	customerRoutes.GET("/:id/history", read, h.GetHistory(models.KindCustomer))
	customerRoutes.GET("/:id/contacts", read, h.GetContacts)
	customerRoutes.POST("/:id/contacts", update, h.AddContact)
	customerRoutes.GET("/:id/activities", read, h.GetActivities)
	customerRoutes.POST("/:id/activities", update, h.AddActivity)
}
