package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"
)

// maxHierarchyDepth 客户上下级链的最大深度，超过即视为存在环
const maxHierarchyDepth = 32

// RecordService 记录的创建、删除、层级与时间维护
type RecordService struct {
	store     repository.Store
	codes     *CodeGenerator
	ownership *OwnershipRegistry
	journal   *journal
	retries   int
}

// CreateCustomer 创建客户。同名且信用代码、地区都相同的客户已存在时返回 DUPLICATE_NAME
func (s *RecordService) CreateCustomer(ctx context.Context, req models.CustomerCreateRequest, operator *utils.LoginUser) (*models.Customer, error) {
	const op = "createCustomer"
	if strings.TrimSpace(req.Name) == "" {
		return nil, utils.CreateBadRequestError("客户名称不能为空")
	}
	// 私海记录必须有负责人
	if !req.Public && operatorID(operator) == "" {
		return nil, utils.CreateUnauthorizedError()
	}
	if err := s.guardDuplicate(ctx, models.KindCustomer, op, req.Name, func(r models.SalesRecord) bool {
		return r.RegistrationID == strings.TrimSpace(req.RegistrationID) && r.Region == strings.TrimSpace(req.Region)
	}); err != nil {
		return nil, err
	}
	if req.ParentCustomerID != "" {
		if _, err := s.store.GetCustomer(ctx, req.ParentCustomerID); err != nil {
			return nil, storeError(err, op, req.ParentCustomerID)
		}
	}

	var created *models.Customer
	err := s.insertWithCode(ctx, models.KindCustomer, op, func(id, code string) error {
		c := models.NewCustomer(id, code, req, operatorID(operator), s.journal.now())
		if err := s.store.InsertCustomer(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.journal.committed(ctx, models.KindCustomer, models.OpCreate, nil, &created.SalesRecord, created.PoolEntryReason, operator)
	return created, nil
}

// CreateLead 创建线索，同名线索已存在时返回 DUPLICATE_NAME
func (s *RecordService) CreateLead(ctx context.Context, req models.LeadCreateRequest, operator *utils.LoginUser) (*models.Lead, error) {
	const op = "createLead"
	if strings.TrimSpace(req.Name) == "" {
		return nil, utils.CreateBadRequestError("线索名称不能为空")
	}
	if !req.Public && operatorID(operator) == "" {
		return nil, utils.CreateUnauthorizedError()
	}
	if err := s.guardDuplicate(ctx, models.KindLead, op, req.Name, nil); err != nil {
		return nil, err
	}

	var created *models.Lead
	err := s.insertWithCode(ctx, models.KindLead, op, func(id, code string) error {
		l := models.NewLead(id, code, req, operatorID(operator), s.journal.now())
		if err := s.store.InsertLead(ctx, l); err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.journal.committed(ctx, models.KindLead, models.OpCreate, nil, &created.SalesRecord, created.PoolEntryReason, operator)
	return created, nil
}

func (s *RecordService) guardDuplicate(ctx context.Context, kind models.RecordKind, op, name string, same func(models.SalesRecord) bool) error {
	existing, err := s.store.Scan(ctx, kind, models.RecordQuery{NameKey: models.NormalizeName(name)})
	if err != nil {
		return err
	}
	for _, r := range existing {
		if same == nil || same(r) {
			return &utils.RecordError{Code: utils.CodeDuplicateName, Op: op, RecordID: r.ID, Reason: "a record named " + r.Name + " already exists"}
		}
	}
	return nil
}

// insertWithCode 生成编码后写入，唯一索引冲突时换新编码重试
func (s *RecordService) insertWithCode(ctx context.Context, kind models.RecordKind, op string, insert func(id, code string) error) error {
	attempts := s.retries
	if attempts < 1 {
		attempts = 1
	}
	id := s.journal.newID()
	var lastCode string
	for i := 0; i < attempts; i++ {
		code, err := s.codes.Next(ctx, CodePrefix(kind))
		if err != nil {
			return err
		}
		lastCode = code
		err = insert(id, code)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return storeError(err, op, id)
		}
		codeCollisions.Inc()
		utils.Logger.Warn().Str("code", code).Int("attempt", i+1).Msg("编码冲突，重新生成")
	}
	return &utils.RecordError{Code: utils.CodeDuplicateCode, Op: op, Reason: "code " + lastCode + " already in use"}
}

// Get 查询记录的归属信息
func (s *RecordService) Get(ctx context.Context, kind models.RecordKind, id string) (*models.SalesRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	r, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, storeError(err, "get", id)
	}
	return r, nil
}

// GetCustomer 查询客户
func (s *RecordService) GetCustomer(ctx context.Context, id string) (*models.Customer, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, storeError(err, "getCustomer", id)
	}
	return c, nil
}

// SoftDelete 软删除，保留历史
func (s *RecordService) SoftDelete(ctx context.Context, kind models.RecordKind, id string, operator *utils.LoginUser) error {
	if err := validKind(kind); err != nil {
		return err
	}
	now := s.journal.now()
	before, after, err := s.ownership.transition(ctx, kind, id, string(models.OpDelete), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		return cur.Retire("", operatorID(operator), now), true, nil
	})
	if err != nil {
		s.journal.failed(kind, models.OpDelete, err)
		return err
	}
	s.journal.committed(ctx, kind, models.OpDelete, before, after, "", operator)
	return nil
}

// SetParent 设置上级客户，parentID 为空时解除。会形成环时返回 CYCLE_DETECTED。
// 写入以客户及其新上级链上每个客户的版本为条件，链在检查后被并发修改时重新检查
func (s *RecordService) SetParent(ctx context.Context, id, parentID string, operator *utils.LoginUser) (*models.Customer, error) {
	const op = "setParent"
	if parentID == id {
		return nil, &utils.RecordError{Code: utils.CodeCycleDetected, Op: op, RecordID: id, Reason: "a customer cannot be its own parent"}
	}
	attempts := s.ownership.retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		cur, err := s.store.GetCustomer(ctx, id)
		if err != nil {
			return nil, storeError(err, op, id)
		}
		if cur.ParentCustomerID == parentID {
			return cur, nil
		}

		var fence map[string]int64
		if parentID != "" {
			parent, err := s.store.GetCustomer(ctx, parentID)
			if err != nil {
				return nil, storeError(err, op, parentID)
			}
			fence, err = ancestorChain(ctx, s.store, parent)
			if err != nil {
				return nil, err
			}
			if _, ok := fence[id]; ok {
				return nil, &utils.RecordError{Code: utils.CodeCycleDetected, Op: op, RecordID: id, Reason: "parent " + parentID + " is a descendant"}
			}
			fence[parent.ID] = parent.Version
		}

		err = s.store.SetParent(ctx, id, cur.Version, parentID, fence, operatorID(operator), s.journal.now())
		if err == nil {
			return s.GetCustomer(ctx, id)
		}
		if !errors.Is(err, repository.ErrStale) || attempt >= attempts {
			return nil, storeError(err, op, id)
		}
		utils.Logger.Debug().Str("op", op).Str("id", id).Int("attempt", attempt).Msg("上级链已变化，重新检查")
	}
}

// ancestorChain 返回客户的全部上级及读取时的版本，链长超过 maxHierarchyDepth 时视为环
func ancestorChain(ctx context.Context, store repository.CustomerStore, c *models.Customer) (map[string]int64, error) {
	chain := make(map[string]int64)
	next := c.ParentCustomerID
	for depth := 0; next != ""; depth++ {
		if _, seen := chain[next]; seen || depth >= maxHierarchyDepth || next == c.ID {
			return nil, &utils.RecordError{Code: utils.CodeCycleDetected, Op: "setParent", RecordID: c.ID, Reason: "hierarchy too deep or cyclic"}
		}
		parent, err := store.GetCustomer(ctx, next)
		if errors.Is(err, repository.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain[next] = parent.Version
		next = parent.ParentCustomerID
	}
	return chain, nil
}

// Subsidiaries 直接下级客户
func (s *RecordService) Subsidiaries(ctx context.Context, parentID string) ([]models.Customer, error) {
	if _, err := s.store.GetCustomer(ctx, parentID); err != nil {
		return nil, storeError(err, "subsidiaries", parentID)
	}
	return s.store.ListSubsidiaries(ctx, parentID)
}

// SetFlags 设置重点客户与黑名单标记
func (s *RecordService) SetFlags(ctx context.Context, id string, isKey, isBlacklist *bool, operator *utils.LoginUser) (*models.Customer, error) {
	patch := repository.CustomerPatch{IsKey: isKey, IsBlacklist: isBlacklist, UpdatedBy: operatorID(operator), UpdatedAt: s.journal.now()}
	if err := s.store.PatchCustomer(ctx, id, patch); err != nil {
		return nil, storeError(err, "setFlags", id)
	}
	return s.GetCustomer(ctx, id)
}

// TouchContact 记录一次跟进。早于已有跟进时间的记录不会回退
func (s *RecordService) TouchContact(ctx context.Context, kind models.RecordKind, id string, at time.Time, operator *utils.LoginUser) (*models.SalesRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	now := s.journal.now()
	if at.IsZero() {
		at = now
	}
	_, after, err := s.ownership.transition(ctx, kind, id, "touchContact", func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		if cur.LastContactTime != nil && !at.After(*cur.LastContactTime) {
			return cur, false, nil
		}
		return cur.Contacted(at, operatorID(operator), now), true, nil
	})
	return after, err
}

// RecordOrder 记录一次成单
func (s *RecordService) RecordOrder(ctx context.Context, id string, at time.Time, operator *utils.LoginUser) (*models.SalesRecord, error) {
	now := s.journal.now()
	if at.IsZero() {
		at = now
	}
	_, after, err := s.ownership.transition(ctx, models.KindCustomer, id, "recordOrder", func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		if cur.LastOrderTime != nil && !at.After(*cur.LastOrderTime) {
			return cur, false, nil
		}
		return cur.Ordered(at, operatorID(operator), now), true, nil
	})
	return after, err
}

// Stats 公海/私海统计，ownerID 为空时统计全部私海
func (s *RecordService) Stats(ctx context.Context, ownerID string) (*models.CustomerStats, error) {
	return s.store.CustomerStats(ctx, ownerID)
}

// ListPool 公海列表，按 id 翻页
func (s *RecordService) ListPool(ctx context.Context, kind models.RecordKind, after string, limit int) ([]models.SalesRecord, int64, error) {
	if err := validKind(kind); err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := models.RecordQuery{PoolState: models.PoolStatePublic, ResumeAfter: after, Limit: limit}
	records, err := s.store.Scan(ctx, kind, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, kind, q)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// History 归属变更历史
func (s *RecordService) History(ctx context.Context, kind models.RecordKind, id string) ([]models.OwnershipHistory, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, kind, id)
}

// AddContact 为客户添加联系人
func (s *RecordService) AddContact(ctx context.Context, customerID string, c models.Contact) (*models.Contact, error) {
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return nil, storeError(err, "addContact", customerID)
	}
	now := s.journal.now()
	c.ID = s.journal.newID()
	c.CustomerID = customerID
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.store.AddContact(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Contacts 客户联系人
func (s *RecordService) Contacts(ctx context.Context, customerID string) ([]models.Contact, error) {
	return s.store.ListContacts(ctx, customerID)
}

// AddActivity 为客户添加活动记录
func (s *RecordService) AddActivity(ctx context.Context, customerID string, a models.Activity, operator *utils.LoginUser) (*models.Activity, error) {
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return nil, storeError(err, "addActivity", customerID)
	}
	now := s.journal.now()
	a.ID = s.journal.newID()
	a.CustomerID = customerID
	a.CreatorID = operatorID(operator)
	if a.OccurredAt.IsZero() {
		a.OccurredAt = now
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	if err := s.store.AddActivity(ctx, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Activities 客户活动记录
func (s *RecordService) Activities(ctx context.Context, customerID string) ([]models.Activity, error) {
	return s.store.ListActivities(ctx, customerID)
}
