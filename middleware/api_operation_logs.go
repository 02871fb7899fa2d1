package middleware

import (
	"net/http"
	"time"

	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// 需要记录的HTTP方法
var loggedMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// 不需要记录的路径
var excludedPaths = map[string]bool{
	"/api/health": true,
	"/metrics":    true,
}

// OperationLoggerMiddleware 写操作审计日志：操作人、路径、状态码与耗时
func OperationLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !shouldLogOperation(c) {
			c.Next()
			return
		}

		startTime := time.Now()
		c.Next()

		operatorID, operatorName, operatorType := extractUserInfo(c)
		event := utils.Logger.Info()
		if c.Writer.Status() >= http.StatusBadRequest {
			event = utils.Logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Str("operatorId", operatorID).
			Str("operatorName", operatorName).
			Str("operatorType", operatorType).
			Int("status", c.Writer.Status()).
			Int64("responseTime", time.Since(startTime).Milliseconds()).
			Str("ip", getClientIP(c)).
			Msg("操作日志")
	}
}

// shouldLogOperation 检查是否需要记录此操作
func shouldLogOperation(c *gin.Context) bool {
	if excludedPaths[c.Request.URL.Path] {
		return false
	}
	return loggedMethods[c.Request.Method]
}

// extractUserInfo 从上下文中提取用户信息，未认证时为匿名用户
func extractUserInfo(c *gin.Context) (string, string, string) {
	user, err := utils.GetUser(c)
	if err != nil {
		return "anonymous", "匿名用户", "UNKNOWN"
	}
	return user.ID, user.Username, user.Role
}

// getClientIP 获取客户端IP地址
func getClientIP(c *gin.Context) string {
	if ip := c.Request.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if ip := c.Request.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}
