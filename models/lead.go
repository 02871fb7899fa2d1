package models

import "time"

// LeadStatus 线索状态
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "NEW"         // 新建
	LeadStatusContacted   LeadStatus = "CONTACTED"   // 已联系
	LeadStatusQualified   LeadStatus = "QUALIFIED"   // 已确认
	LeadStatusConverted   LeadStatus = "CONVERTED"   // 已转化（终态）
	LeadStatusUnqualified LeadStatus = "UNQUALIFIED" // 无效（终态）
)

// Valid 是否为已知状态
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusConverted, LeadStatusUnqualified:
		return true
	}
	return false
}

// Terminal 是否为终态
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusConverted || s == LeadStatusUnqualified
}

// LeadPriority 线索优先级
type LeadPriority string

const (
	LeadPriorityLow    LeadPriority = "LOW"
	LeadPriorityMedium LeadPriority = "MEDIUM"
	LeadPriorityHigh   LeadPriority = "HIGH"
	LeadPriorityUrgent LeadPriority = "URGENT"
)

// Lead 线索模型
type Lead struct {
	SalesRecord `bson:",inline"`

	CompanyName  string `json:"companyName,omitempty" bson:"companyName,omitempty"`
	ContactName  string `json:"contactName,omitempty" bson:"contactName,omitempty"`
	ContactPhone string `json:"contactPhone,omitempty" bson:"contactPhone,omitempty"`
	Source       string `json:"source,omitempty" bson:"source,omitempty"`

	Status         LeadStatus   `json:"status" bson:"status"`
	Priority       LeadPriority `json:"priority" bson:"priority"`
	Score          int          `json:"score" bson:"score"`
	NextFollowTime *time.Time   `json:"nextFollowTime,omitempty" bson:"nextFollowTime,omitempty"`

	// 转化信息，只写一次
	ConvertedCustomerID string     `json:"convertedCustomerId,omitempty" bson:"convertedCustomerId,omitempty"`
	ConvertedAt         *time.Time `json:"convertedAt,omitempty" bson:"convertedAt,omitempty"`
}

// LeadCreateRequest 创建线索请求
type LeadCreateRequest struct {
	Name         string       `json:"name" binding:"required"`
	CompanyName  string       `json:"companyName"`
	ContactName  string       `json:"contactName"`
	ContactPhone string       `json:"contactPhone"`
	Region       string       `json:"region"`
	Source       string       `json:"source"`
	Priority     LeadPriority `json:"priority"`
	Public       bool         `json:"public"`
}

// NewLead 根据创建请求构造线索，初始状态 NEW、评分 0
func NewLead(id, code string, req LeadCreateRequest, creator string, now time.Time) *Lead {
	priority := req.Priority
	if priority == "" {
		priority = LeadPriorityMedium
	}
	return &Lead{
		SalesRecord:  newSalesRecord(id, code, req.Name, "", req.Region, creator, req.Public, now),
		CompanyName:  req.CompanyName,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Source:       req.Source,
		Status:       LeadStatusNew,
		Priority:     priority,
	}
}

// IsConverted 是否已转化
func (l *Lead) IsConverted() bool {
	return l.Status == LeadStatusConverted || l.ConvertedCustomerID != ""
}

// Convert 转化为客户。已转化时返回 false，转化字段保持不变
func (l Lead) Convert(customerID, by string, now time.Time) (Lead, bool) {
	if l.IsConverted() {
		return l, false
	}
	l.Status = LeadStatusConverted
	l.ConvertedCustomerID = customerID
	l.ConvertedAt = timePtr(now)
	// 转化后不再参与跟进排期
	l.NextFollowTime = nil
	l.stamp(by, now)
	return l, true
}

// WithStatus 自由修改状态，调用方负责拦截 CONVERTED
func (l Lead) WithStatus(status LeadStatus, by string, now time.Time) Lead {
	l.Status = status
	if status.Terminal() {
		l.NextFollowTime = nil
	}
	l.stamp(by, now)
	return l
}

// ApplyFollowUp 一次跟进对线索的全部影响
func (l Lead) ApplyFollowUp(in FollowUpInput, by string, now time.Time) Lead {
	at := in.FollowTime
	if at.IsZero() {
		at = now
	}
	l.LastContactTime = timePtr(at)
	l.Score += in.ScoreChange
	if in.StatusChange != "" {
		l.Status = in.StatusChange
	}
	if in.NextFollowTime != nil {
		l.NextFollowTime = in.NextFollowTime
	}
	if l.Status.Terminal() {
		l.NextFollowTime = nil
	}
	l.stamp(by, now)
	return l
}
