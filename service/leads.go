package service

import (
	"context"
	"errors"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"
)

// LeadCoordinator 线索状态、跟进与转化
type LeadCoordinator struct {
	store     repository.LeadStore
	customers repository.CustomerStore
	followUps repository.FollowUpLog
	journal   *journal
	retries   int
}

type leadApplyFunc func(cur models.Lead) (next models.Lead, changed bool, err error)

func (c *LeadCoordinator) swap(ctx context.Context, id, op string, apply leadApplyFunc) (before, after *models.Lead, err error) {
	attempts := c.retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		cur, err := c.store.GetLead(ctx, id)
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
		err = c.store.SwapLead(ctx, &next)
		if err == nil {
			return cur, &next, nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt >= attempts {
			return cur, nil, storeError(err, op, id)
		}
	}
}

// Get 查询线索
func (c *LeadCoordinator) Get(ctx context.Context, id string) (*models.Lead, error) {
	l, err := c.store.GetLead(ctx, id)
	if err != nil {
		return nil, storeError(err, "getLead", id)
	}
	return l, nil
}

// UpdateStatus 自由修改状态，但不能直接改为 CONVERTED，也不能改出 CONVERTED
func (c *LeadCoordinator) UpdateStatus(ctx context.Context, id string, status models.LeadStatus, operator *utils.LoginUser) (*models.Lead, error) {
	const op = "updateStatus"
	if !status.Valid() {
		return nil, &utils.RecordError{Code: utils.CodeInvalidTransition, Op: op, RecordID: id, Reason: "unknown status " + string(status)}
	}
	if status == models.LeadStatusConverted {
		return nil, &utils.RecordError{Code: utils.CodeInvalidTransition, Op: op, RecordID: id, Reason: "use convert to mark a lead converted"}
	}

	now := c.journal.now()
	_, after, err := c.swap(ctx, id, op, func(cur models.Lead) (models.Lead, bool, error) {
		if cur.IsConverted() {
			return cur, false, &utils.RecordError{Code: utils.CodeAlreadyConverted, Op: op, RecordID: id}
		}
		if cur.Status == status {
			return cur, false, nil
		}
		return cur.WithStatus(status, operatorID(operator), now), true, nil
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

// Convert 转化为客户。已转化的线索返回 ALREADY_CONVERTED，转化字段保持不变
func (c *LeadCoordinator) Convert(ctx context.Context, leadID, customerID string, operator *utils.LoginUser) (*models.Lead, error) {
	op := string(models.OpConvert)
	if customerID == "" {
		return nil, utils.CreateBadRequestError("缺少客户ID")
	}
	if _, err := c.customers.GetCustomer(ctx, customerID); err != nil {
		return nil, storeError(err, op, customerID)
	}

	now := c.journal.now()
	before, after, err := c.swap(ctx, leadID, op, func(cur models.Lead) (models.Lead, bool, error) {
		next, ok := cur.Convert(customerID, operatorID(operator), now)
		if !ok {
			return cur, false, &utils.RecordError{
				Code: utils.CodeAlreadyConverted, Op: op, RecordID: leadID,
				Reason: "converted to " + cur.ConvertedCustomerID,
			}
		}
		return next, true, nil
	})
	if err != nil {
		c.journal.failed(models.KindLead, models.OpConvert, err)
		return nil, err
	}
	c.journal.committed(ctx, models.KindLead, models.OpConvert, &before.SalesRecord, &after.SalesRecord, "converted to "+customerID, operator)
	return after, nil
}

// RecordFollowUp 一次原子更新跟进时间、评分、状态与下次跟进时间，提交后追加跟进记录
func (c *LeadCoordinator) RecordFollowUp(ctx context.Context, leadID string, in models.FollowUpInput, operator *utils.LoginUser) (*models.Lead, *models.LeadFollowUp, error) {
	const op = "recordFollowUp"
	if in.StatusChange != "" {
		if !in.StatusChange.Valid() {
			return nil, nil, &utils.RecordError{Code: utils.CodeInvalidTransition, Op: op, RecordID: leadID, Reason: "unknown status " + string(in.StatusChange)}
		}
		if in.StatusChange == models.LeadStatusConverted {
			return nil, nil, &utils.RecordError{Code: utils.CodeInvalidTransition, Op: op, RecordID: leadID, Reason: "use convert to mark a lead converted"}
		}
	}

	now := c.journal.now()
	if in.FollowTime.IsZero() {
		in.FollowTime = now
	}
	before, after, err := c.swap(ctx, leadID, op, func(cur models.Lead) (models.Lead, bool, error) {
		if cur.IsConverted() && in.StatusChange != "" {
			return cur, false, &utils.RecordError{Code: utils.CodeAlreadyConverted, Op: op, RecordID: leadID}
		}
		return cur.ApplyFollowUp(in, operatorID(operator), now), true, nil
	})
	if err != nil {
		return nil, nil, err
	}

	entry := &models.LeadFollowUp{
		ID:             c.journal.newID(),
		LeadID:         leadID,
		Title:          in.Title,
		Content:        in.Content,
		FollowTime:     in.FollowTime,
		ScoreChange:    in.ScoreChange,
		StatusBefore:   before.Status,
		StatusAfter:    after.Status,
		NextFollowTime: after.NextFollowTime,
		CreatorID:      operatorID(operator),
		CreatedAt:      now,
	}
	if operator != nil {
		entry.CreatorName = operator.Username
	}
	if err := c.followUps.AppendFollowUp(ctx, entry); err != nil {
		utils.LogError("写入跟进记录失败", err, map[string]interface{}{"leadId": leadID})
	}
	return after, entry, nil
}

// FollowUps 线索的跟进记录
func (c *LeadCoordinator) FollowUps(ctx context.Context, leadID string) ([]models.LeadFollowUp, error) {
	if _, err := c.Get(ctx, leadID); err != nil {
		return nil, err
	}
	return c.followUps.ListFollowUps(ctx, leadID)
}

// DueFollowUps 到期待跟进的线索，已转化与无效线索不在其中
func (c *LeadCoordinator) DueFollowUps(ctx context.Context, limit int) ([]models.Lead, error) {
	return c.store.DueFollowUps(ctx, c.journal.now(), limit)
}
