package models

import "time"

// FollowUpInput 一次线索跟进的输入
type FollowUpInput struct {
	Title          string     `json:"title"`
	Content        string     `json:"content" binding:"required"`
	FollowTime     time.Time  `json:"followTime"`
	ScoreChange    int        `json:"scoreChange"`
	StatusChange   LeadStatus `json:"statusChange,omitempty"`
	NextFollowTime *time.Time `json:"nextFollowTime,omitempty"`
}

// LeadFollowUp 线索跟进记录
type LeadFollowUp struct {
	ID             string     `bson:"_id" json:"id"`
	LeadID         string     `bson:"leadId" json:"leadId"`
	Title          string     `bson:"title,omitempty" json:"title,omitempty"`
	Content        string     `bson:"content" json:"content"`
	FollowTime     time.Time  `bson:"followTime" json:"followTime"`
	ScoreChange    int        `bson:"scoreChange" json:"scoreChange"`
	StatusBefore   LeadStatus `bson:"statusBefore" json:"statusBefore"`
	StatusAfter    LeadStatus `bson:"statusAfter" json:"statusAfter"`
	NextFollowTime *time.Time `bson:"nextFollowTime,omitempty" json:"nextFollowTime,omitempty"`
	CreatorID      string     `bson:"creatorId" json:"creatorId"`
	CreatorName    string     `bson:"creatorName" json:"creatorName"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
}
