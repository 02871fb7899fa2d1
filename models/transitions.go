package models

import "time"

// 归属状态迁移函数。全部为纯函数：接收当前记录副本，返回下一状态，
// 由存储层以版本号比较后写入，保证同一记录上的迁移可线性化。

// Release 移入公海。已在公海时原样返回 false，调用方视为幂等成功
func (r SalesRecord) Release(reason, by string, now time.Time) (SalesRecord, bool) {
	if r.IsPublic() {
		return r, false
	}
	r.PoolState = PoolStatePublic
	r.OwnerID = ""
	r.PoolEntryTime = timePtr(now)
	r.PoolEntryReason = reason
	r.stamp(by, now)
	return r, true
}

// Claim 从公海认领。记录不在公海时返回 false
func (r SalesRecord) Claim(claimant string, now time.Time) (SalesRecord, bool) {
	if !r.IsPublic() || claimant == "" {
		return r, false
	}
	r.PoolState = PoolStatePrivate
	r.OwnerID = claimant
	r.PoolEntryTime = nil
	r.PoolEntryReason = ""
	r.stamp(claimant, now)
	return r, true
}

// Assign 管理员强制分配，无论当前处于公海还是私海
func (r SalesRecord) Assign(newOwner, by string, now time.Time) SalesRecord {
	r.PoolState = PoolStatePrivate
	r.OwnerID = newOwner
	r.PoolEntryTime = nil
	r.PoolEntryReason = ""
	r.stamp(by, now)
	return r
}

// Transfer 负责人之间转移。当前负责人不是 from 时返回 false
func (r SalesRecord) Transfer(from, to, by string, now time.Time) (SalesRecord, bool) {
	if r.IsPublic() || r.OwnerID != from || to == "" {
		return r, false
	}
	r.OwnerID = to
	r.stamp(by, now)
	return r, true
}

// Retire 软删除，可选记录合并去向
func (r SalesRecord) Retire(mergedInto, by string, now time.Time) SalesRecord {
	r.Deleted = true
	r.MergedInto = mergedInto
	r.stamp(by, now)
	return r
}

// Touch 仅更新审计时间
func (r SalesRecord) Touch(by string, now time.Time) SalesRecord {
	r.stamp(by, now)
	return r
}

// Contacted 记录最近一次跟进时间
func (r SalesRecord) Contacted(at time.Time, by string, now time.Time) SalesRecord {
	r.LastContactTime = timePtr(at)
	r.stamp(by, now)
	return r
}

// Ordered 记录最近一次成单时间
func (r SalesRecord) Ordered(at time.Time, by string, now time.Time) SalesRecord {
	r.LastOrderTime = timePtr(at)
	r.stamp(by, now)
	return r
}

func (r *SalesRecord) stamp(by string, now time.Time) {
	if by != "" {
		r.UpdatedBy = by
	}
	r.UpdatedAt = now
}

// Staleness 自动回收判定条件
type Staleness struct {
	ContactBefore time.Time // 最后跟进时间早于此时刻视为未跟进
	OrderBefore   time.Time // 最后成单时间早于此时刻视为未成单
}

// NewStaleness 根据未跟进天数与未成单天数计算截止时间
func NewStaleness(now time.Time, noFollowUpDays, noOrderDays int) Staleness {
	return Staleness{
		ContactBefore: now.AddDate(0, 0, -noFollowUpDays),
		OrderBefore:   now.AddDate(0, 0, -noOrderDays),
	}
}

// Matches 从未跟进或从未成单的记录以创建时间作为参考时间
func (s Staleness) Matches(r *SalesRecord) bool {
	contactRef := r.CreatedAt
	if r.LastContactTime != nil {
		contactRef = *r.LastContactTime
	}
	orderRef := r.CreatedAt
	if r.LastOrderTime != nil {
		orderRef = *r.LastOrderTime
	}
	return contactRef.Before(s.ContactBefore) || orderRef.Before(s.OrderBefore)
}
