package models

import "time"

// Contact 客户联系人，随合并迁移到存续客户
type Contact struct {
	ID         string    `json:"id" bson:"_id"`
	CustomerID string    `json:"customerId" bson:"customerId"`
	Name       string    `json:"name" bson:"name" binding:"required"`
	Phone      string    `json:"phone,omitempty" bson:"phone,omitempty"`
	Email      string    `json:"email,omitempty" bson:"email,omitempty"`
	Position   string    `json:"position,omitempty" bson:"position,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Activity 客户活动记录（拜访、电话、会议等）
type Activity struct {
	ID         string    `json:"id" bson:"_id"`
	CustomerID string    `json:"customerId" bson:"customerId"`
	Type       string    `json:"type" bson:"type"`
	Subject    string    `json:"subject" bson:"subject"`
	OccurredAt time.Time `json:"occurredAt" bson:"occurredAt"`
	CreatorID  string    `json:"creatorId" bson:"creatorId"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ReparentResult 子记录迁移数量
type ReparentResult struct {
	Contacts     int `json:"contacts"`
	Activities   int `json:"activities"`
	Subsidiaries int `json:"subsidiaries"`
}
