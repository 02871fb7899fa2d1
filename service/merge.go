package service

import (
	"context"
	"fmt"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MergeEngine 把重复客户合并到存续客户
type MergeEngine struct {
	store     repository.Store
	children  repository.ChildReparenter
	ownership *OwnershipRegistry
	journal   *journal
	tracer    trace.Tracer
}

// Merge 逐个处理候选：先迁移子记录，迁移成功后才软删除候选。
// 存续客户只更新 updatedAt。任一候选失败时返回 PARTIAL_BATCH_FAILURE 与完整结果
func (m *MergeEngine) Merge(ctx context.Context, survivorID string, mergeIDs []string, operator *utils.LoginUser) (*models.MergeResult, error) {
	op := string(models.OpMerge)
	ctx, span := m.tracer.Start(ctx, "merge.customers")
	defer span.End()
	span.SetAttributes(attribute.String("merge.survivor", survivorID), attribute.Int("merge.candidates", len(mergeIDs)))

	survivor, err := m.store.GetCustomer(ctx, survivorID)
	if err != nil {
		return nil, storeError(err, op, survivorID)
	}
	ancestors, err := ancestorChain(ctx, m.store, survivor)
	if err != nil {
		return nil, err
	}

	result := &models.MergeResult{SurvivorID: survivorID, Merged: []string{}}
	for _, id := range uniqueIDs(mergeIDs) {
		if id == survivorID {
			continue
		}
		err := m.mergeOne(ctx, id, survivorID, ancestors, operator, result)
		result.Outcomes = append(result.Outcomes, outcomeOf(id, err))
		if err != nil {
			m.journal.failed(models.KindCustomer, models.OpMerge, err)
			utils.Logger.Warn().Err(err).Str("survivor", survivorID).Str("id", id).Msg("合并候选失败")
			continue
		}
		result.Merged = append(result.Merged, id)
	}

	if len(result.Merged) > 0 {
		now := m.journal.now()
		_, _, err := m.ownership.transition(ctx, models.KindCustomer, survivorID, op, func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
			return cur.Touch("", now), true, nil
		})
		if err != nil {
			// 候选已删除且子记录已迁移，时间戳更新失败不回滚
			utils.LogError("更新存续客户时间失败", err, map[string]interface{}{"id": survivorID})
		}
	}

	failed := len(result.Outcomes) - len(result.Merged)
	span.SetAttributes(attribute.Int("merge.merged", len(result.Merged)), attribute.Int("merge.failed", failed))
	if failed > 0 {
		span.SetStatus(codes.Error, "partial merge")
		return result, &utils.RecordError{
			Code:     utils.CodePartialBatch,
			Op:       op,
			RecordID: survivorID,
			Reason:   fmt.Sprintf("%d/%d candidates failed", failed, len(result.Outcomes)),
		}
	}
	return result, nil
}

func (m *MergeEngine) mergeOne(ctx context.Context, id, survivorID string, survivorAncestors map[string]int64,
	operator *utils.LoginUser, result *models.MergeResult) error {

	op := string(models.OpMerge)
	if _, err := m.store.GetCustomer(ctx, id); err != nil {
		return storeError(err, op, id)
	}
	// 候选是存续客户的上级时，迁移下级客户会形成环
	if _, ok := survivorAncestors[id]; ok {
		return &utils.RecordError{Code: utils.CodeCycleDetected, Op: op, RecordID: id, Reason: "candidate is an ancestor of the survivor"}
	}

	moved, err := m.children.Reparent(ctx, id, survivorID)
	if err != nil {
		return &utils.RecordError{Code: utils.CodePartialBatch, Op: op, RecordID: id, Reason: "reparent children failed", Err: err}
	}
	result.Contacts += moved.Contacts
	result.Activities += moved.Activities
	result.Children += moved.Subsidiaries

	now := m.journal.now()
	before, after, err := m.ownership.transition(ctx, models.KindCustomer, id, op, func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		return cur.Retire(survivorID, operatorID(operator), now), true, nil
	})
	if err != nil {
		return err
	}
	m.journal.committed(ctx, models.KindCustomer, models.OpMerge, before, after, "merged into "+survivorID, operator)
	return nil
}
