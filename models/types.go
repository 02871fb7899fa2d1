package models

import "time"

// UserRole 用户角色枚举
type UserRole string

const (
	UserRoleSUPER_ADMIN   UserRole = "SUPER_ADMIN"   // 超级管理员
	UserRoleSALES_MANAGER UserRole = "SALES_MANAGER" // 销售主管
	UserRoleSALES         UserRole = "SALES"         // 销售
)

// IsManager 是否具备分配、回收等管理权限
func (r UserRole) IsManager() bool {
	return r == UserRoleSUPER_ADMIN || r == UserRoleSALES_MANAGER
}

// 各种请求和响应结构
type (
	// MoveToPoolRequest 移入公海请求
	MoveToPoolRequest struct {
		IDs    []string `json:"ids" binding:"required,min=1"`
		Reason string   `json:"reason"`
	}

	// AssignRequest 分配请求
	AssignRequest struct {
		OwnerID string `json:"ownerId" binding:"required"`
	}

	// BatchAssignRequest 批量分配请求
	BatchAssignRequest struct {
		IDs     []string `json:"ids" binding:"required,min=1"`
		OwnerID string   `json:"ownerId" binding:"required"`
	}

	// BatchClaimRequest 批量认领请求
	BatchClaimRequest struct {
		IDs []string `json:"ids" binding:"required,min=1"`
	}

	// TransferRequest 负责人转移请求
	TransferRequest struct {
		FromOwnerID string `json:"fromOwnerId" binding:"required"`
		ToOwnerID   string `json:"toOwnerId" binding:"required"`
	}

	// ShareRequest 协作人共享请求
	ShareRequest struct {
		CollaboratorIDs []string `json:"collaboratorIds" binding:"required,min=1"`
	}

	// SetParentRequest 设置上级客户请求，ParentID 为空表示解除
	SetParentRequest struct {
		ParentID string `json:"parentId"`
	}

	// FlagsRequest 重点/黑名单标记请求
	FlagsRequest struct {
		IsKey       *bool `json:"isKey"`
		IsBlacklist *bool `json:"isBlacklist"`
	}

	// TimestampRequest 跟进/成单时间请求，为空时取当前时间
	TimestampRequest struct {
		At *time.Time `json:"at"`
	}

	// MergeRequest 合并请求
	MergeRequest struct {
		SurvivorID string   `json:"survivorId" binding:"required"`
		MergeIDs   []string `json:"mergeIds" binding:"required,min=1"`
	}

	// LeadStatusRequest 线索状态修改请求
	LeadStatusRequest struct {
		Status LeadStatus `json:"status" binding:"required"`
	}

	// ConvertRequest 线索转化请求
	ConvertRequest struct {
		CustomerID string `json:"customerId" binding:"required"`
	}

	// SweepRequest 手动触发回收请求，零值取当前配置
	SweepRequest struct {
		NoFollowUpDays int    `json:"noFollowUpDays"`
		NoOrderDays    int    `json:"noOrderDays"`
		ResumeAfter    string `json:"resumeAfter"`
	}
)
