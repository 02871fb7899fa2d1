package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
)

// MemoryStore 进程内存储，用于开发与测试
type MemoryStore struct {
	mu         sync.RWMutex
	customers  map[string]*models.Customer
	leads      map[string]*models.Lead
	codes      map[string]string // code -> id
	contacts   map[string]*models.Contact
	activities map[string]*models.Activity
	followUps  []models.LeadFollowUp
	history    []models.OwnershipHistory
	configs    map[models.ConfigType]models.SystemConfig
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:  make(map[string]*models.Customer),
		leads:      make(map[string]*models.Lead),
		codes:      make(map[string]string),
		contacts:   make(map[string]*models.Contact),
		activities: make(map[string]*models.Activity),
		configs:    make(map[models.ConfigType]models.SystemConfig),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

// record 返回记录在存储中的归属字段，包含已删除记录。调用方需持锁
func (s *MemoryStore) record(kind models.RecordKind, id string) *models.SalesRecord {
	switch kind {
	case models.KindCustomer:
		if c, ok := s.customers[id]; ok {
			return &c.SalesRecord
		}
	case models.KindLead:
		if l, ok := s.leads[id]; ok {
			return &l.SalesRecord
		}
	}
	return nil
}

func (s *MemoryStore) records(kind models.RecordKind) []*models.SalesRecord {
	var out []*models.SalesRecord
	switch kind {
	case models.KindCustomer:
		for _, c := range s.customers {
			out = append(out, &c.SalesRecord)
		}
	case models.KindLead:
		for _, l := range s.leads {
			out = append(out, &l.SalesRecord)
		}
	}
	return out
}

func (s *MemoryStore) Get(_ context.Context, kind models.RecordKind, id string) (*models.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.record(kind, id)
	if r == nil || r.Deleted {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) Swap(_ context.Context, kind models.RecordKind, next *models.SalesRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.record(kind, next.ID)
	if cur == nil || cur.Deleted {
		return ErrNotFound
	}
	if cur.Version != next.Version {
		return ErrStale
	}
	saved := *next
	saved.Code = cur.Code
	saved.CreatedAt = cur.CreatedAt
	saved.CreatedBy = cur.CreatedBy
	saved.Version = cur.Version + 1
	*cur = saved
	next.Version = saved.Version
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, kind models.RecordKind, q models.RecordQuery) ([]models.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.filter(kind, q)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context, kind models.RecordKind, q models.RecordQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q.ResumeAfter = ""
	return int64(len(s.filter(kind, q))), nil
}

func (s *MemoryStore) filter(kind models.RecordKind, q models.RecordQuery) []models.SalesRecord {
	var out []models.SalesRecord
	for _, r := range s.records(kind) {
		if matchQuery(r, q) {
			out = append(out, *r)
		}
	}
	return out
}

func matchQuery(r *models.SalesRecord, q models.RecordQuery) bool {
	switch {
	case r.Deleted:
		return false
	case q.PoolState != "" && r.PoolState != q.PoolState:
		return false
	case q.OwnerID != "" && r.OwnerID != q.OwnerID:
		return false
	case q.NameKey != "" && r.NameKey != q.NameKey:
		return false
	case q.RegistrationID != "" && r.RegistrationID != q.RegistrationID:
		return false
	case q.Region != "" && r.Region != q.Region:
		return false
	case q.ResumeAfter != "" && r.ID <= q.ResumeAfter:
		return false
	case q.Stale != nil && !q.Stale.Matches(r):
		return false
	}
	return true
}

// 客户

func copyCustomer(c *models.Customer) *models.Customer {
	cp := *c
	cp.CollaboratorIDs = append([]string(nil), c.CollaboratorIDs...)
	return &cp
}

func (s *MemoryStore) InsertCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[c.Code]; ok {
		return ErrDuplicate
	}
	if _, ok := s.customers[c.ID]; ok {
		return ErrDuplicate
	}
	s.codes[c.Code] = c.ID
	s.customers[c.ID] = copyCustomer(c)
	return nil
}

func (s *MemoryStore) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok || c.Deleted {
		return nil, ErrNotFound
	}
	return copyCustomer(c), nil
}

func (s *MemoryStore) PatchCustomer(_ context.Context, id string, patch CustomerPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.Deleted {
		return ErrNotFound
	}
	if patch.IsKey != nil {
		c.IsKey = *patch.IsKey
	}
	if patch.IsBlacklist != nil {
		c.IsBlacklist = *patch.IsBlacklist
	}
	if patch.UpdatedBy != "" {
		c.UpdatedBy = patch.UpdatedBy
	}
	c.UpdatedAt = patch.UpdatedAt
	c.Version++
	return nil
}

func (s *MemoryStore) SetParent(_ context.Context, id string, version int64, parentID string, fence map[string]int64, by string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.Deleted {
		return ErrNotFound
	}
	if c.Version != version {
		return ErrStale
	}
	for fid, v := range fence {
		f, ok := s.customers[fid]
		if !ok || f.Deleted || f.Version != v {
			return ErrStale
		}
	}
	c.ParentCustomerID = parentID
	if by != "" {
		c.UpdatedBy = by
	}
	c.UpdatedAt = now
	c.Version++
	return nil
}

func (s *MemoryStore) AddCollaborators(_ context.Context, id string, version int64, collaboratorIDs []string, by string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[id]
	if !ok || c.Deleted {
		return ErrNotFound
	}
	if c.Version != version {
		return ErrStale
	}
	seen := make(map[string]bool, len(c.CollaboratorIDs))
	for _, existing := range c.CollaboratorIDs {
		seen[existing] = true
	}
	for _, cid := range collaboratorIDs {
		if !seen[cid] {
			seen[cid] = true
			c.CollaboratorIDs = append(c.CollaboratorIDs, cid)
		}
	}
	c.UpdatedBy = by
	c.UpdatedAt = now
	c.Version++
	return nil
}

func (s *MemoryStore) ListSubsidiaries(_ context.Context, parentID string) ([]models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Customer
	for _, c := range s.customers {
		if !c.Deleted && c.ParentCustomerID == parentID {
			out = append(out, *copyCustomer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CustomerStats(_ context.Context, ownerID string) (*models.CustomerStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.CustomerStats{}
	for _, c := range s.customers {
		if c.Deleted {
			continue
		}
		if c.IsPublic() {
			stats.PublicPoolCount++
			continue
		}
		if ownerID != "" && c.OwnerID != ownerID {
			continue
		}
		stats.PrivateCount++
		if c.IsKey {
			stats.KeyCount++
		}
		if c.IsBlacklist {
			stats.BlacklistCount++
		}
	}
	stats.TotalCount = stats.PrivateCount + stats.PublicPoolCount
	return stats, nil
}

// 线索

func (s *MemoryStore) InsertLead(_ context.Context, l *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[l.Code]; ok {
		return ErrDuplicate
	}
	if _, ok := s.leads[l.ID]; ok {
		return ErrDuplicate
	}
	s.codes[l.Code] = l.ID
	cp := *l
	s.leads[l.ID] = &cp
	return nil
}

func (s *MemoryStore) GetLead(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leads[id]
	if !ok || l.Deleted {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) SwapLead(_ context.Context, next *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[next.ID]
	if !ok || cur.Deleted {
		return ErrNotFound
	}
	if cur.Version != next.Version {
		return ErrStale
	}
	saved := *next
	saved.Code = cur.Code
	saved.CreatedAt = cur.CreatedAt
	saved.CreatedBy = cur.CreatedBy
	saved.Version = cur.Version + 1
	*cur = saved
	next.Version = saved.Version
	return nil
}

func (s *MemoryStore) DueFollowUps(_ context.Context, now time.Time, limit int) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Lead
	for _, l := range s.leads {
		if l.Deleted || l.Status.Terminal() || l.NextFollowTime == nil || l.NextFollowTime.After(now) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextFollowTime.Before(*out[j].NextFollowTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// 跟进记录与历史

func (s *MemoryStore) AppendFollowUp(_ context.Context, f *models.LeadFollowUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.followUps = append(s.followUps, *f)
	return nil
}

func (s *MemoryStore) ListFollowUps(_ context.Context, leadID string) ([]models.LeadFollowUp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LeadFollowUp
	for _, f := range s.followUps {
		if f.LeadID == leadID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, h *models.OwnershipHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, *h)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, kind models.RecordKind, recordID string) ([]models.OwnershipHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.OwnershipHistory
	for _, h := range s.history {
		if h.Kind == kind && h.RecordID == recordID {
			out = append(out, h)
		}
	}
	return out, nil
}

// 子记录

func (s *MemoryStore) AddContact(_ context.Context, c *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.contacts[c.ID] = &cp
	return nil
}

func (s *MemoryStore) ListContacts(_ context.Context, customerID string) ([]models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Contact
	for _, c := range s.contacts {
		if c.CustomerID == customerID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddActivity(_ context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.activities[a.ID] = &cp
	return nil
}

func (s *MemoryStore) ListActivities(_ context.Context, customerID string) ([]models.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Activity
	for _, a := range s.activities {
		if a.CustomerID == customerID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Reparent(_ context.Context, fromID, toID string) (models.ReparentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res models.ReparentResult
	for _, c := range s.contacts {
		if c.CustomerID == fromID {
			c.CustomerID = toID
			res.Contacts++
		}
	}
	for _, a := range s.activities {
		if a.CustomerID == fromID {
			a.CustomerID = toID
			res.Activities++
		}
	}
	for id, c := range s.customers {
		if id == toID || c.Deleted || c.ParentCustomerID != fromID {
			continue
		}
		c.ParentCustomerID = toID
		c.Version++
		res.Subsidiaries++
	}
	return res, nil
}

// 系统配置

func (s *MemoryStore) GetConfig(_ context.Context, configType models.ConfigType) (*models.SystemConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[configType]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (s *MemoryStore) SaveConfig(_ context.Context, cfg *models.SystemConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.ConfigType] = *cfg
	return nil
}
