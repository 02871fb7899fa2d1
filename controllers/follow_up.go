package controllers

import (
	"net/http"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// CreateLead 创建线索
// POST /api/leads
func (h *Handler) CreateLead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.LeadCreateRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.svc.Records.CreateLead(c.Request.Context(), req, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "线索创建成功", http.StatusCreated)
}

// GetLeadDetail 线索详情
// GET /api/leads/:id
func (h *Handler) GetLeadDetail(c *gin.Context) {
	lead, err := h.svc.Leads.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "")
}

// UpdateLeadStatus 修改线索状态
// PUT /api/leads/:id/status
func (h *Handler) UpdateLeadStatus(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.LeadStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.svc.Leads.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "")
}

// ConvertLead 线索转化为客户
// POST /api/leads/:id/convert
func (h *Handler) ConvertLead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ConvertRequest
	if !bindJSON(c, &req) {
		return
	}
	lead, err := h.svc.Leads.Convert(c.Request.Context(), c.Param("id"), req.CustomerID, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, lead, "转化成功")
}

// AddFollowUp 新增跟进记录，同时更新线索的跟进时间、评分与状态
// POST /api/leads/:id/follow-ups
func (h *Handler) AddFollowUp(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.FollowUpInput
	if !bindJSON(c, &req) {
		return
	}
	lead, entry, err := h.svc.Leads.RecordFollowUp(c.Request.Context(), c.Param("id"), req, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"lead": lead, "followUp": entry}, "跟进记录创建成功", http.StatusCreated)
}

// GetFollowUps 线索跟进记录
// GET /api/leads/:id/follow-ups
func (h *Handler) GetFollowUps(c *gin.Context) {
	records, err := h.svc.Leads.FollowUps(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"followUps": records, "total": len(records)}, "")
}

// GetDueFollowUps 到期待跟进线索
// GET /api/leads/due-follow-ups?limit=
func (h *Handler) GetDueFollowUps(c *gin.Context) {
	leads, err := h.svc.Leads.DueFollowUps(c.Request.Context(), intQuery(c, "limit", 100))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"leads": leads, "total": len(leads)}, "")
}
