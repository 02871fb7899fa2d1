package service

import (
	"context"
	"sort"
	"strings"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
)

// DuplicateDetector 疑似重复记录检测，只读，不阻止创建
type DuplicateDetector struct {
	store repository.RecordStore
}

// FindCandidates 按匹配强度排序返回候选：统一社会信用代码 > 名称+地区 > 仅名称。
// 同一记录只保留最强的一种匹配
func (d *DuplicateDetector) FindCandidates(ctx context.Context, kind models.RecordKind, q models.DuplicateQuery) ([]models.DuplicateCandidate, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	best := make(map[string]models.DuplicateCandidate)
	offer := func(r models.SalesRecord, strength models.MatchStrength) {
		if cur, ok := best[r.ID]; !ok || strength > cur.Strength {
			best[r.ID] = models.DuplicateCandidate{Record: r, Strength: strength}
		}
	}

	if regID := strings.TrimSpace(q.RegistrationID); regID != "" {
		records, err := d.store.Scan(ctx, kind, models.RecordQuery{RegistrationID: regID})
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			offer(r, models.MatchRegistrationID)
		}
	}

	if nameKey := models.NormalizeName(q.Name); nameKey != "" {
		records, err := d.store.Scan(ctx, kind, models.RecordQuery{NameKey: nameKey})
		if err != nil {
			return nil, err
		}
		region := strings.TrimSpace(q.Region)
		for _, r := range records {
			if region != "" && strings.EqualFold(strings.TrimSpace(r.Region), region) {
				offer(r, models.MatchNameRegion)
			} else {
				offer(r, models.MatchNameOnly)
			}
		}
	}

	out := make([]models.DuplicateCandidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out, nil
}
