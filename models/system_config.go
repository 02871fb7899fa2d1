package models

import "time"

// ConfigType 配置类型枚举
type ConfigType string

const (
	// ConfigTypePoolEviction 公海自动回收配置
	ConfigTypePoolEviction ConfigType = "pool_eviction"
)

// EvictionPolicy 自动回收阈值
type EvictionPolicy struct {
	NoFollowUpDays int `json:"noFollowUpDays" bson:"noFollowUpDays"`
	NoOrderDays    int `json:"noOrderDays" bson:"noOrderDays"`
}

// Valid 阈值必须为正
func (p EvictionPolicy) Valid() bool {
	return p.NoFollowUpDays > 0 && p.NoOrderDays > 0
}

// SystemConfig 系统配置模型 (MongoDB文档结构)
type SystemConfig struct {
	ConfigType  ConfigType     `bson:"_id" json:"configType"`
	ConfigValue EvictionPolicy `bson:"configValue" json:"configValue"`
	Description string         `bson:"description" json:"description"`
	IsEnabled   bool           `bson:"isEnabled" json:"isEnabled"`

	// 更新信息
	UpdaterID string    `bson:"updaterId,omitempty" json:"updaterId,omitempty"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// UpdateEvictionConfigRequest 更新回收配置请求
type UpdateEvictionConfigRequest struct {
	NoFollowUpDays int    `json:"noFollowUpDays" binding:"required,min=1"`
	NoOrderDays    int    `json:"noOrderDays" binding:"required,min=1"`
	Description    string `json:"description"`
	IsEnabled      *bool  `json:"isEnabled,omitempty"`
}
