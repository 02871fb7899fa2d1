package models

// RecordQuery 销售记录筛选条件，零值字段不参与过滤。已删除记录始终排除
type RecordQuery struct {
	PoolState      PoolState
	OwnerID        string
	NameKey        string
	RegistrationID string
	Region         string
	// 命中任一过期条件即返回
	Stale *Staleness
	// 按 _id 升序分页，返回大于该值的记录
	ResumeAfter string
	Limit       int
}

// DuplicateQuery 查重输入
type DuplicateQuery struct {
	Name           string `json:"name"`
	RegistrationID string `json:"registrationId"`
	Region         string `json:"region"`
}

// MatchStrength 查重匹配强度，数值越大越强
type MatchStrength int

const (
	MatchNameOnly MatchStrength = iota + 1
	MatchNameRegion
	MatchRegistrationID
)

func (m MatchStrength) String() string {
	switch m {
	case MatchRegistrationID:
		return "registrationId"
	case MatchNameRegion:
		return "name+region"
	case MatchNameOnly:
		return "name"
	}
	return "none"
}

// MarshalText 以可读名称序列化
func (m MatchStrength) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// DuplicateCandidate 疑似重复记录
type DuplicateCandidate struct {
	Record   SalesRecord   `json:"record"`
	Strength MatchStrength `json:"strength"`
}
