package models

import (
	"strings"
	"time"
)

// Customer 客户模型
type Customer struct {
	SalesRecord `bson:",inline"`

	ShortName string `json:"shortName,omitempty" bson:"shortName,omitempty"`
	Industry  string `json:"industry,omitempty" bson:"industry,omitempty"`
	Level     string `json:"level,omitempty" bson:"level,omitempty"`
	Source    string `json:"source,omitempty" bson:"source,omitempty"`

	// 上级客户（集团/子公司层级）
	ParentCustomerID string `json:"parentCustomerId,omitempty" bson:"parentCustomerId,omitempty"`

	IsKey       bool `json:"isKey" bson:"isKey"`             // 重点客户
	IsBlacklist bool `json:"isBlacklist" bson:"isBlacklist"` // 黑名单

	// 协作人只读共享，不改变负责人
	CollaboratorIDs []string `json:"collaboratorIds,omitempty" bson:"collaboratorIds,omitempty"`
}

// CustomerCreateRequest 创建客户请求
type CustomerCreateRequest struct {
	Name             string `json:"name" binding:"required"`
	ShortName        string `json:"shortName"`
	RegistrationID   string `json:"registrationId"`
	Region           string `json:"region"`
	Industry         string `json:"industry"`
	Level            string `json:"level"`
	Source           string `json:"source"`
	ParentCustomerID string `json:"parentCustomerId"`
	// 为 true 时直接进入公海，否则归创建人所有
	Public bool `json:"public"`
}

// NewCustomer 根据创建请求构造客户
func NewCustomer(id, code string, req CustomerCreateRequest, creator string, now time.Time) *Customer {
	c := &Customer{
		SalesRecord: newSalesRecord(id, code, req.Name, req.RegistrationID, req.Region, creator, req.Public, now),
		ShortName:   req.ShortName,
		Industry:    req.Industry,
		Level:       req.Level,
		Source:      req.Source,
	}
	c.ParentCustomerID = req.ParentCustomerID
	return c
}

// CustomerStats 公海/私海统计
type CustomerStats struct {
	PrivateCount    int64 `json:"privateCount"`
	KeyCount        int64 `json:"keyCount"`
	BlacklistCount  int64 `json:"blacklistCount"`
	PublicPoolCount int64 `json:"publicPoolCount"`
	TotalCount      int64 `json:"totalCount"`
}

func newSalesRecord(id, code, name, registrationID, region, creator string, public bool, now time.Time) SalesRecord {
	r := SalesRecord{
		ID:             id,
		Code:           code,
		Name:           strings.TrimSpace(name),
		NameKey:        NormalizeName(name),
		RegistrationID: strings.TrimSpace(registrationID),
		Region:         strings.TrimSpace(region),
		CreatedBy:      creator,
		CreatedAt:      now,
		UpdatedBy:      creator,
		UpdatedAt:      now,
	}
	if public {
		r.PoolState = PoolStatePublic
		r.PoolEntryTime = timePtr(now)
		r.PoolEntryReason = "created in pool"
	} else {
		r.PoolState = PoolStatePrivate
		r.OwnerID = creator
	}
	return r
}
