package repository

import (
	"context"
	"errors"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
)

// 存储层错误，由服务层翻译为业务错误码
var (
	ErrNotFound  = errors.New("record not found")
	ErrStale     = errors.New("record version changed")
	ErrDuplicate = errors.New("duplicate key")
)

// RecordStore 客户与线索共享的归属字段读写。
// 已软删除的记录对所有读取、扫描和比较写入不可见。
type RecordStore interface {
	Get(ctx context.Context, kind models.RecordKind, id string) (*models.SalesRecord, error)
	// Swap 仅当存储中的版本等于 next.Version 时写入 next 的归属字段并递增版本，
	// 否则返回 ErrStale
	Swap(ctx context.Context, kind models.RecordKind, next *models.SalesRecord) error
	Scan(ctx context.Context, kind models.RecordKind, q models.RecordQuery) ([]models.SalesRecord, error)
	Count(ctx context.Context, kind models.RecordKind, q models.RecordQuery) (int64, error)
}

// CustomerPatch 客户非归属字段的局部更新
type CustomerPatch struct {
	IsKey       *bool
	IsBlacklist *bool
	UpdatedBy   string
	UpdatedAt   time.Time
}

// CustomerStore 客户专有字段
type CustomerStore interface {
	InsertCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	PatchCustomer(ctx context.Context, id string, patch CustomerPatch) error
	// SetParent 仅当客户版本等于 version、且 fence 中每个上级客户的版本都未变化时写入上级，
	// 否则返回 ErrStale。parentID 为空表示解除。fence 中客户的版本可能被递增
	SetParent(ctx context.Context, id string, version int64, parentID string, fence map[string]int64, by string, now time.Time) error
	// AddCollaborators 仅当客户版本等于 version 时追加协作人，否则返回 ErrStale
	AddCollaborators(ctx context.Context, id string, version int64, collaboratorIDs []string, by string, now time.Time) error
	ListSubsidiaries(ctx context.Context, parentID string) ([]models.Customer, error)
	CustomerStats(ctx context.Context, ownerID string) (*models.CustomerStats, error)
}

// LeadStore 线索专有字段
type LeadStore interface {
	InsertLead(ctx context.Context, l *models.Lead) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	// SwapLead 与 Swap 相同的版本比较语义，写入整条线索
	SwapLead(ctx context.Context, next *models.Lead) error
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]models.Lead, error)
}

// FollowUpLog 线索跟进记录
type FollowUpLog interface {
	AppendFollowUp(ctx context.Context, f *models.LeadFollowUp) error
	ListFollowUps(ctx context.Context, leadID string) ([]models.LeadFollowUp, error)
}

// HistoryLog 归属变更历史
type HistoryLog interface {
	AppendHistory(ctx context.Context, h *models.OwnershipHistory) error
	ListHistory(ctx context.Context, kind models.RecordKind, recordID string) ([]models.OwnershipHistory, error)
}

// ChildReparenter 合并时把子记录迁移到存续客户
type ChildReparenter interface {
	// Reparent 迁移 fromID 下的联系人、活动与下级客户到 toID，toID 自身不会被迁移
	Reparent(ctx context.Context, fromID, toID string) (models.ReparentResult, error)
}

// ChildStore 客户子记录
type ChildStore interface {
	AddContact(ctx context.Context, c *models.Contact) error
	ListContacts(ctx context.Context, customerID string) ([]models.Contact, error)
	AddActivity(ctx context.Context, a *models.Activity) error
	ListActivities(ctx context.Context, customerID string) ([]models.Activity, error)
}

// ConfigStore 系统配置
type ConfigStore interface {
	GetConfig(ctx context.Context, configType models.ConfigType) (*models.SystemConfig, error)
	SaveConfig(ctx context.Context, cfg *models.SystemConfig) error
}

// Store 全部存储能力，由 MongoDB 与内存实现
type Store interface {
	RecordStore
	CustomerStore
	LeadStore
	FollowUpLog
	HistoryLog
	ChildReparenter
	ChildStore
	ConfigStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Sequence 按 key 递增的计数器
type Sequence interface {
	Next(ctx context.Context, key string) (int64, error)
}

// Publisher 归属事件投递
type Publisher interface {
	Publish(ctx context.Context, evt models.OwnershipEvent) error
	Close() error
}
