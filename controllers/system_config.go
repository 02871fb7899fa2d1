package controllers

import (
	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// GetEvictionConfig 当前生效的自动回收阈值
// GET /api/pool/eviction-config
func (h *Handler) GetEvictionConfig(c *gin.Context) {
	utils.Logger.Info().Msg("[配置管理] 获取公海回收配置")
	policy, err := h.svc.Eviction.Policy(c.Request.Context())
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, policy, "")
}

// UpdateEvictionConfig 更新自动回收阈值
// PUT /api/pool/eviction-config
func (h *Handler) UpdateEvictionConfig(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UpdateEvictionConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.svc.Eviction.UpdatePolicy(c.Request.Context(), req, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, cfg, "配置更新成功")
}
