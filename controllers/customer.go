package controllers

import (
	"net/http"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/gin-gonic/gin"
)

// CreateCustomer 创建客户
// POST /api/customers
func (h *Handler) CreateCustomer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CustomerCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.svc.Records.CreateCustomer(c.Request.Context(), req, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, customer, "客户创建成功", http.StatusCreated)
}

// GetCustomerDetail 获取客户详情
// GET /api/customers/:id
func (h *Handler) GetCustomerDetail(c *gin.Context) {
	customer, err := h.svc.Records.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, customer, "")
}

// DeleteRecord 软删除客户或线索
// DELETE /api/customers/:id, DELETE /api/leads/:id
func (h *Handler) DeleteRecord(kind models.RecordKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if err := h.svc.Records.SoftDelete(c.Request.Context(), kind, c.Param("id"), user); err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, nil, "删除成功")
	}
}

// SetParentCustomer 设置或解除上级客户
// PUT /api/customers/:id/parent
func (h *Handler) SetParentCustomer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.SetParentRequest
	if !bindJSON(c, &req) {
		return
	}
	customer, err := h.svc.Records.SetParent(c.Request.Context(), c.Param("id"), req.ParentID, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, customer, "")
}

// GetSubsidiaries 下级客户列表
// GET /api/customers/:id/subsidiaries
func (h *Handler) GetSubsidiaries(c *gin.Context) {
	subs, err := h.svc.Records.Subsidiaries(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"subsidiaries": subs, "total": len(subs)}, "")
}

// SetCustomerFlags 设置重点客户/黑名单
// PUT /api/customers/:id/flags
func (h *Handler) SetCustomerFlags(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.FlagsRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.IsKey == nil && req.IsBlacklist == nil {
		utils.HandleError(c, utils.CreateBadRequestError("至少需要设置一个标记"))
		return
	}
	customer, err := h.svc.Records.SetFlags(c.Request.Context(), c.Param("id"), req.IsKey, req.IsBlacklist, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, customer, "")
}

// CheckDuplicates 疑似重复检测，按匹配强度排序
// POST /api/customers/check-duplicates, POST /api/leads/check-duplicates
func (h *Handler) CheckDuplicates(kind models.RecordKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q models.DuplicateQuery
		if !bindJSON(c, &q) {
			return
		}
		candidates, err := h.svc.Duplicates.FindCandidates(c.Request.Context(), kind, q)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, gin.H{"candidates": candidates, "total": len(candidates)}, "")
	}
}

// MergeCustomers 合并重复客户
// POST /api/customers/merge
func (h *Handler) MergeCustomers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.MergeRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.svc.Merge.Merge(c.Request.Context(), req.SurvivorID, req.MergeIDs, user)
	if err != nil {
		if result != nil {
			partialResponse(c, result, err)
			return
		}
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, result, "合并完成")
}

// ShareCustomer 添加协作人
// POST /api/customers/:id/share
func (h *Handler) ShareCustomer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ShareRequest
	if !bindJSON(c, &req) {
		return
	}
	customer, err := h.svc.Ownership.ShareWithCollaborators(c.Request.Context(), c.Param("id"), req.CollaboratorIDs, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, customer, "")
}

// TouchContact 记录一次跟进
// POST /api/customers/:id/contact, POST /api/leads/:id/contact
func (h *Handler) TouchContact(kind models.RecordKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		at, ok := timestampBody(c)
		if !ok {
			return
		}
		record, err := h.svc.Records.TouchContact(c.Request.Context(), kind, c.Param("id"), at, user)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, record, "")
	}
}

// RecordOrder 记录一次成单
// POST /api/customers/:id/order
func (h *Handler) RecordOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	at, ok := timestampBody(c)
	if !ok {
		return
	}
	record, err := h.svc.Records.RecordOrder(c.Request.Context(), c.Param("id"), at, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, record, "")
}

// timestampBody 请求体可为空，为空时取当前时间
func timestampBody(c *gin.Context) (time.Time, bool) {
	var req models.TimestampRequest
	if c.Request.ContentLength > 0 {
		if !bindJSON(c, &req) {
			return time.Time{}, false
		}
	}
	if req.At == nil {
		return time.Time{}, true
	}
	return *req.At, true
}

// GetHistory 归属变更历史
// GET /api/customers/:id/history, GET /api/leads/:id/history
func (h *Handler) GetHistory(kind models.RecordKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := h.svc.Records.History(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		utils.SuccessResponse(c, gin.H{"history": history, "total": len(history)}, "")
	}
}

// AddContact 添加联系人
// POST /api/customers/:id/contacts
func (h *Handler) AddContact(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	var req models.Contact
	if !bindJSON(c, &req) {
		return
	}
	contact, err := h.svc.Records.AddContact(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, contact, "", http.StatusCreated)
}

// GetContacts 联系人列表
// GET /api/customers/:id/contacts
func (h *Handler) GetContacts(c *gin.Context) {
	contacts, err := h.svc.Records.Contacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"contacts": contacts, "total": len(contacts)}, "")
}

// AddActivity 添加活动记录
// POST /api/customers/:id/activities
func (h *Handler) AddActivity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.Activity
	if !bindJSON(c, &req) {
		return
	}
	activity, err := h.svc.Records.AddActivity(c.Request.Context(), c.Param("id"), req, user)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, activity, "", http.StatusCreated)
}

// GetStats 公海/私海统计，普通销售只能看自己的私海
// GET /api/pool/stats
func (h *Handler) GetStats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ownerID := c.Query("ownerId")
	if !user.IsManager() {
		ownerID = user.ID
	}
	stats, err := h.svc.Records.Stats(c.Request.Context(), ownerID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, stats, "")
}

// GetActivities 活动记录列表
// GET /api/customers/:id/activities
func (h *Handler) GetActivities(c *gin.Context) {
	activities, err := h.svc.Records.Activities(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"activities": activities, "total": len(activities)}, "")
}
