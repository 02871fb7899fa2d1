package controllers

import (
	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/service"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// GetPublicPool 公海列表，按 id 翻页
// GET /api/pool/:kind?after=&limit=
func (h *Handler) GetPublicPool(c *gin.Context) {
	kind := kindParam(c)
	limit := intQuery(c, "limit", 50)
	records, total, err := h.svc.Records.ListPool(c.Request.Context(), kind, c.Query("after"), limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	next := ""
	if len(records) > 0 {
		next = records[len(records)-1].ID
	}
	utils.SuccessResponse(c, gin.H{
		"records": records,
		"total":   total,
		"next":    next,
	}, "")
}

// MoveToPool 批量移入公海
// POST /api/pool/:kind/move-to-pool
func (h *Handler) MoveToPool(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.MoveToPoolRequest
	if !bindJSON(c, &req) {
		return
	}
	result := h.svc.Ownership.ReleaseToPool(c.Request.Context(), kindParam(c), req.IDs, req.Reason, user)
	utils.BatchResponse(c, result)
}

// ClaimRecord 从公海认领
// POST /api/pool/:kind/:id/claim
func (h *Handler) ClaimRecord(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	record, err := h.svc.Ownership.Claim(c.Request.Context(), kindParam(c), c.Param("id"), user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, record, "认领成功")
}

// BatchClaim 批量认领
// POST /api/pool/:kind/batch-claim
func (h *Handler) BatchClaim(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.BatchClaimRequest
	if !bindJSON(c, &req) {
		return
	}
	utils.BatchResponse(c, h.svc.Ownership.BatchClaim(c.Request.Context(), kindParam(c), req.IDs, user))
}

// AssignRecord 分配负责人
// POST /api/pool/:kind/:id/assign
func (h *Handler) AssignRecord(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.AssignRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := h.svc.Ownership.Assign(c.Request.Context(), kindParam(c), c.Param("id"), req.OwnerID, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, record, "分配成功")
}

// BatchAssign 批量分配
// POST /api/pool/:kind/batch-assign
func (h *Handler) BatchAssign(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.BatchAssignRequest
	if !bindJSON(c, &req) {
		return
	}
	utils.BatchResponse(c, h.svc.Ownership.BatchAssign(c.Request.Context(), kindParam(c), req.IDs, req.OwnerID, user))
}

// TransferRecord 负责人之间转移
// POST /api/pool/:kind/:id/transfer
func (h *Handler) TransferRecord(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !bindJSON(c, &req) {
		return
	}
	// 普通销售只能转出自己名下的记录
	if !user.IsManager() && req.FromOwnerID != user.ID {
		utils.HandleError(c, utils.CreateForbiddenError())
		return
	}
	record, err := h.svc.Ownership.Transfer(c.Request.Context(), kindParam(c), c.Param("id"), req.FromOwnerID, req.ToOwnerID, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, record, "转移成功")
}

// RunSweep 手动触发一次自动回收
// POST /api/pool/sweep?kind=customer
func (h *Handler) RunSweep(c *gin.Context) {
	var req models.SweepRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	kind := models.RecordKind(c.DefaultQuery("kind", string(models.KindCustomer)))
	report, err := h.svc.Eviction.Sweep(c.Request.Context(), service.SweepOptions{
		Kind:           kind,
		NoFollowUpDays: req.NoFollowUpDays,
		NoOrderDays:    req.NoOrderDays,
		ResumeAfter:    req.ResumeAfter,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, report, "")
}
