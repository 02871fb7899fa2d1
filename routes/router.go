package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/BerniceZTT/crm_pool/controllers"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, h *controllers.Handler, store Pinger) {
	RegisterCustomerRoutes(router, h)
	RegisterPublicPoolRoutes(router, h)
	RegisterLeadRoutes(router, h)

	// 健康检查路由
	router.GET("/api/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
