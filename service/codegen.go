package service

import (
	"context"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
)

// 编码前缀
const (
	CustomerCodePrefix = "CUST"
	LeadCodePrefix     = "LEAD"
)

// CodePrefix 记录类型对应的编码前缀
func CodePrefix(kind models.RecordKind) string {
	if kind == models.KindLead {
		return LeadCodePrefix
	}
	return CustomerCodePrefix
}

// CodeGenerator 生成 <前缀><yyyymmdd><6位序号> 形式的编码，序号按前缀与日期原子递增
type CodeGenerator struct {
	seq repository.Sequence
	now func() time.Time
}

func NewCodeGenerator(seq repository.Sequence, now func() time.Time) *CodeGenerator {
	if now == nil {
		now = time.Now
	}
	return &CodeGenerator{seq: seq, now: now}
}

// Next 生成下一个编码
func (g *CodeGenerator) Next(ctx context.Context, prefix string) (string, error) {
	day := g.now().Format("20060102")
	n, err := g.seq.Next(ctx, prefix+day)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%s%s%06d", prefix, day, n), nil
}
