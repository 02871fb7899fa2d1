package models

import (
	"strings"
	"time"
)

// RecordKind 销售记录类型
type RecordKind string

const (
	KindCustomer RecordKind = "customer" // 客户
	KindLead     RecordKind = "lead"     // 线索
)

// Valid 是否为已知的记录类型
func (k RecordKind) Valid() bool {
	return k == KindCustomer || k == KindLead
}

// PoolState 公海状态
type PoolState string

const (
	PoolStatePrivate PoolState = "PRIVATE" // 私海，有且仅有一个负责人
	PoolStatePublic  PoolState = "PUBLIC"  // 公海，无负责人，可被认领
)

// ReasonAutoEvicted 自动回收进入公海的原因
const ReasonAutoEvicted = "auto-evicted: inactivity"

// SalesRecord 客户与线索共享的销售记录结构
type SalesRecord struct {
	ID             string `json:"id" bson:"_id"`
	Code           string `json:"code" bson:"code"`
	Name           string `json:"name" bson:"name"`
	NameKey        string `json:"-" bson:"nameKey"` // 归一化名称，查重使用
	RegistrationID string `json:"registrationId,omitempty" bson:"registrationId,omitempty"` // 统一社会信用代码
	Region         string `json:"region,omitempty" bson:"region,omitempty"`

	// 归属信息，OwnerID 为空表示无负责人
	OwnerID         string     `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	PoolState       PoolState  `json:"poolState" bson:"poolState"`
	PoolEntryTime   *time.Time `json:"poolEntryTime,omitempty" bson:"poolEntryTime,omitempty"`
	PoolEntryReason string     `json:"poolEntryReason,omitempty" bson:"poolEntryReason,omitempty"`

	LastContactTime *time.Time `json:"lastContactTime,omitempty" bson:"lastContactTime,omitempty"`
	LastOrderTime   *time.Time `json:"lastOrderTime,omitempty" bson:"lastOrderTime,omitempty"`

	Deleted    bool   `json:"deleted" bson:"deleted"`
	MergedInto string `json:"mergedInto,omitempty" bson:"mergedInto,omitempty"`
	Version    int64  `json:"version" bson:"version"`

	CreatedBy string    `json:"createdBy,omitempty" bson:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedBy string    `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsPublic 是否在公海
func (r *SalesRecord) IsPublic() bool {
	return r.PoolState == PoolStatePublic
}

// Consistent 公海状态与负责人是否一致：PUBLIC 当且仅当无负责人
func (r *SalesRecord) Consistent() bool {
	switch r.PoolState {
	case PoolStatePublic:
		return r.OwnerID == ""
	case PoolStatePrivate:
		return r.OwnerID != ""
	}
	return false
}

// NormalizeName 名称查重时使用的归一化形式
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
