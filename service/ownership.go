package service

import (
	"context"
	"errors"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"

	"golang.org/x/sync/errgroup"
)

// OwnershipRegistry 公海/私海归属变更。每次变更都是一次版本比较写入，
// 版本冲突时重新读取并重新判定
type OwnershipRegistry struct {
	store       repository.Store
	journal     *journal
	concurrency int
	retries     int
}

// applyFunc 根据当前状态计算下一状态，changed 为 false 表示无需写入
type applyFunc func(cur models.SalesRecord) (next models.SalesRecord, changed bool, err error)

func (o *OwnershipRegistry) transition(ctx context.Context, kind models.RecordKind, id, op string, apply applyFunc) (before, after *models.SalesRecord, err error) {
	attempts := o.retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		cur, err := o.store.Get(ctx, kind, id)
		if err != nil {
			return nil, nil, storeError(err, op, id)
		}
		next, changed, err := apply(*cur)
		if err != nil {
			return cur, nil, err
		}
		if !changed {
			return cur, cur, nil
		}
		if !next.Consistent() {
			utils.LogInconsistency(op, id, "poolState matches owner", next)
			return cur, nil, &utils.RecordError{Code: utils.CodeInvalidTransition, Op: op, RecordID: id, Reason: "pool state and owner disagree"}
		}
		err = o.store.Swap(ctx, kind, &next)
		if err == nil {
			return cur, &next, nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt >= attempts {
			return cur, nil, storeError(err, op, id)
		}
		utils.Logger.Debug().Str("op", op).Str("id", id).Int("attempt", attempt).Msg("版本冲突，重新读取")
	}
}

// Release 把单条记录移入公海。已在公海视为成功
func (o *OwnershipRegistry) Release(ctx context.Context, kind models.RecordKind, id, reason string, operator *utils.LoginUser) (*models.SalesRecord, error) {
	return o.release(ctx, kind, id, reason, models.OpRelease, operator)
}

func (o *OwnershipRegistry) release(ctx context.Context, kind models.RecordKind, id, reason string,
	op models.OwnershipOperation, operator *utils.LoginUser) (*models.SalesRecord, error) {

	if err := validKind(kind); err != nil {
		return nil, err
	}
	now := o.journal.now()
	before, after, err := o.transition(ctx, kind, id, string(op), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		// 普通销售只能释放自己名下的记录
		if !cur.IsPublic() && operator != nil && !operator.IsManager() && cur.OwnerID != operator.ID {
			return cur, false, &utils.RecordError{
				Code: utils.CodeOwnershipMismatch, Op: string(op), RecordID: id,
				Reason: "record is owned by another user",
			}
		}
		next, changed := cur.Release(reason, operatorID(operator), now)
		return next, changed, nil
	})
	if err != nil {
		o.journal.failed(kind, op, err)
		return nil, err
	}
	if before != after {
		o.journal.committed(ctx, kind, op, before, after, reason, operator)
	}
	return after, nil
}

// ReleaseToPool 批量移入公海，逐条独立执行
func (o *OwnershipRegistry) ReleaseToPool(ctx context.Context, kind models.RecordKind, ids []string, reason string, operator *utils.LoginUser) *models.BatchResult {
	return o.batch(ctx, "moveToPool", ids, func(ctx context.Context, id string) error {
		_, err := o.Release(ctx, kind, id, reason, operator)
		return err
	})
}

// Claim 从公海认领，并发认领时只有一个成功，其余返回 ALREADY_CLAIMED
func (o *OwnershipRegistry) Claim(ctx context.Context, kind models.RecordKind, id string, claimant *utils.LoginUser) (*models.SalesRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	if claimant == nil || claimant.ID == "" {
		return nil, utils.CreateUnauthorizedError()
	}
	now := o.journal.now()
	before, after, err := o.transition(ctx, kind, id, string(models.OpClaim), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		next, ok := cur.Claim(claimant.ID, now)
		if !ok {
			return cur, false, &utils.RecordError{
				Code: utils.CodeAlreadyClaimed, Op: string(models.OpClaim), RecordID: id,
				Reason: "record is not in the public pool",
			}
		}
		return next, true, nil
	})
	if err != nil {
		o.journal.failed(kind, models.OpClaim, err)
		return nil, err
	}
	o.journal.committed(ctx, kind, models.OpClaim, before, after, "", claimant)
	return after, nil
}

// BatchClaim 批量认领
func (o *OwnershipRegistry) BatchClaim(ctx context.Context, kind models.RecordKind, ids []string, claimant *utils.LoginUser) *models.BatchResult {
	return o.batch(ctx, "batchClaim", ids, func(ctx context.Context, id string) error {
		_, err := o.Claim(ctx, kind, id, claimant)
		return err
	})
}

// Assign 强制分配给指定负责人，无论当前状态
func (o *OwnershipRegistry) Assign(ctx context.Context, kind models.RecordKind, id, newOwner string, operator *utils.LoginUser) (*models.SalesRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	if newOwner == "" {
		return nil, utils.CreateBadRequestError("缺少负责人")
	}
	now := o.journal.now()
	before, after, err := o.transition(ctx, kind, id, string(models.OpAssign), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		if !cur.IsPublic() && cur.OwnerID == newOwner {
			return cur, false, nil
		}
		return cur.Assign(newOwner, operatorID(operator), now), true, nil
	})
	if err != nil {
		o.journal.failed(kind, models.OpAssign, err)
		return nil, err
	}
	if before != after {
		o.journal.committed(ctx, kind, models.OpAssign, before, after, "", operator)
	}
	return after, nil
}

// BatchAssign 批量分配
func (o *OwnershipRegistry) BatchAssign(ctx context.Context, kind models.RecordKind, ids []string, newOwner string, operator *utils.LoginUser) *models.BatchResult {
	return o.batch(ctx, "batchAssign", ids, func(ctx context.Context, id string) error {
		_, err := o.Assign(ctx, kind, id, newOwner, operator)
		return err
	})
}

// Transfer 当前负责人为 from 时转给 to，否则返回 OWNERSHIP_MISMATCH 且负责人不变
func (o *OwnershipRegistry) Transfer(ctx context.Context, kind models.RecordKind, id, from, to string, operator *utils.LoginUser) (*models.SalesRecord, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	if from == "" || to == "" {
		return nil, utils.CreateBadRequestError("缺少原负责人或目标负责人")
	}
	now := o.journal.now()
	before, after, err := o.transition(ctx, kind, id, string(models.OpTransfer), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		next, ok := cur.Transfer(from, to, operatorID(operator), now)
		if !ok {
			return cur, false, &utils.RecordError{
				Code: utils.CodeOwnershipMismatch, Op: string(models.OpTransfer), RecordID: id,
				Reason: "current owner is " + ownerLabel(cur.OwnerID) + ", not " + from,
			}
		}
		return next, from != to, nil
	})
	if err != nil {
		o.journal.failed(kind, models.OpTransfer, err)
		return nil, err
	}
	if before != after {
		o.journal.committed(ctx, kind, models.OpTransfer, before, after, "", operator)
	}
	return after, nil
}

// ShareWithCollaborators 添加只读协作人，负责人不变。负责人本人不会被加入。
// 追加以读取时的版本为条件，版本冲突时按最新负责人重新计算
func (o *OwnershipRegistry) ShareWithCollaborators(ctx context.Context, id string, collaboratorIDs []string, operator *utils.LoginUser) (*models.Customer, error) {
	op := string(models.OpShare)
	attempts := o.retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		c, err := o.store.GetCustomer(ctx, id)
		if err != nil {
			return nil, storeError(err, op, id)
		}
		add := newCollaborators(c, collaboratorIDs)
		if len(add) == 0 {
			return c, nil
		}

		now := o.journal.now()
		by := operatorID(operator)
		err = o.store.AddCollaborators(ctx, id, c.Version, add, by, now)
		if err == nil {
			updated := *c
			updated.CollaboratorIDs = append(append([]string(nil), c.CollaboratorIDs...), add...)
			updated.Version++
			updated.UpdatedAt = now
			updated.UpdatedBy = by
			o.journal.committed(ctx, models.KindCustomer, models.OpShare, &c.SalesRecord, &updated.SalesRecord, "", operator)
			return &updated, nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt >= attempts {
			err = storeError(err, op, id)
			o.journal.failed(models.KindCustomer, models.OpShare, err)
			return nil, err
		}
		utils.Logger.Debug().Str("op", op).Str("id", id).Int("attempt", attempt).Msg("版本冲突，重新读取")
	}
}

// newCollaborators 过滤空值、负责人和已有协作人
func newCollaborators(c *models.Customer, collaboratorIDs []string) []string {
	var add []string
	seen := make(map[string]bool, len(c.CollaboratorIDs))
	for _, existing := range c.CollaboratorIDs {
		seen[existing] = true
	}
	for _, cid := range collaboratorIDs {
		if cid == "" || cid == c.OwnerID || seen[cid] {
			continue
		}
		seen[cid] = true
		add = append(add, cid)
	}
	return add
}

// batch 对每个 id 独立执行 fn，并发受 concurrency 限制，结果按输入顺序返回
func (o *OwnershipRegistry) batch(ctx context.Context, op string, ids []string, fn func(context.Context, string) error) *models.BatchResult {
	ids = uniqueIDs(ids)
	result := &models.BatchResult{Op: op, Outcomes: make([]models.Outcome, len(ids))}

	var g errgroup.Group
	limit := o.concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			result.Outcomes[i] = outcomeOf(id, fn(ctx, id))
			return nil
		})
	}
	_ = g.Wait()

	if failed := len(result.Failed()); failed > 0 {
		utils.Logger.Warn().Str("op", op).Int("failed", failed).Int("total", len(ids)).Msg("批量操作部分失败")
	}
	return result
}

func outcomeOf(id string, err error) models.Outcome {
	if err == nil {
		return models.Outcome{ID: id, OK: true}
	}
	code := string(utils.CodeOf(err))
	if code == "" {
		var apiErr *utils.ApiError
		if errors.As(err, &apiErr) {
			code = apiErr.ErrorCode
		} else {
			code = "INTERNAL"
		}
	}
	return models.Outcome{ID: id, OK: false, Code: code, Error: err.Error(), Err: err}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func ownerLabel(owner string) string {
	if owner == "" {
		return "<none>"
	}
	return owner
}
