package models

import "time"

// Outcome 批量操作中单条记录的结果
type Outcome struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Err   error  `json:"-"`
}

// BatchResult 批量操作结果，按输入顺序排列
type BatchResult struct {
	Op       string    `json:"op"`
	Outcomes []Outcome `json:"outcomes"`
}

// Succeeded 成功条数
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, o := range b.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failed 失败的记录
func (b *BatchResult) Failed() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.OK {
			out = append(out, o)
		}
	}
	return out
}

// Partial 部分成功
func (b *BatchResult) Partial() bool {
	s := b.Succeeded()
	return s > 0 && s < len(b.Outcomes)
}

// MergeResult 合并结果
type MergeResult struct {
	SurvivorID string    `json:"survivorId"`
	Merged     []string  `json:"merged"`
	Outcomes   []Outcome `json:"outcomes"`
	Contacts   int       `json:"contacts"`
	Activities int       `json:"activities"`
	Children   int       `json:"children"`
}

// SweepReport 一次自动回收的结果
type SweepReport struct {
	RunID     string            `json:"runId"`
	StartedAt time.Time         `json:"startedAt"`
	Scanned   int               `json:"scanned"`
	Released  []string          `json:"released"`
	Failed    map[string]string `json:"failed,omitempty"`
	// 断点，下次从此 id 之后继续
	LastID    string            `json:"lastId,omitempty"`
	Cancelled bool              `json:"cancelled"`
}
