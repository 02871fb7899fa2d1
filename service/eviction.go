package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SweepOptions 一次回收的参数，天数为零时取当前生效配置
type SweepOptions struct {
	Kind           models.RecordKind
	NoFollowUpDays int
	NoOrderDays    int
	// 断点续扫，从该 id 之后开始
	ResumeAfter string
	BatchSize   int
}

// EvictionEngine 把长期未跟进或未成单的私海记录回收到公海
type EvictionEngine struct {
	store     repository.RecordStore
	configs   repository.ConfigStore
	ownership *OwnershipRegistry
	defaults  models.EvictionPolicy
	batchSize int
	journal   *journal
	tracer    trace.Tracer
}

// Policy 当前生效的回收阈值：启用的 pool_eviction 配置优先，否则取启动配置
func (e *EvictionEngine) Policy(ctx context.Context) (models.EvictionPolicy, error) {
	cfg, err := e.configs.GetConfig(ctx, models.ConfigTypePoolEviction)
	if errors.Is(err, repository.ErrNotFound) {
		return e.defaults, nil
	}
	if err != nil {
		return e.defaults, fmt.Errorf("load eviction config: %w", err)
	}
	if !cfg.IsEnabled || !cfg.ConfigValue.Valid() {
		return e.defaults, nil
	}
	return cfg.ConfigValue, nil
}

// UpdatePolicy 保存运行时回收配置
func (e *EvictionEngine) UpdatePolicy(ctx context.Context, req models.UpdateEvictionConfigRequest, operator *utils.LoginUser) (*models.SystemConfig, error) {
	policy := models.EvictionPolicy{NoFollowUpDays: req.NoFollowUpDays, NoOrderDays: req.NoOrderDays}
	if !policy.Valid() {
		return nil, utils.CreateBadRequestError("回收天数必须大于0")
	}
	enabled := true
	if req.IsEnabled != nil {
		enabled = *req.IsEnabled
	}
	cfg := &models.SystemConfig{
		ConfigType:  models.ConfigTypePoolEviction,
		ConfigValue: policy,
		Description: req.Description,
		IsEnabled:   enabled,
		UpdaterID:   operatorID(operator),
		UpdatedAt:   e.journal.now(),
	}
	if err := e.configs.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save eviction config: %w", err)
	}
	utils.Logger.Info().
		Int("noFollowUpDays", policy.NoFollowUpDays).
		Int("noOrderDays", policy.NoOrderDays).
		Bool("enabled", enabled).
		Msg("公海回收配置已更新")
	return cfg, nil
}

// Sweep 扫描过期的私海记录并逐条回收。单条失败只记录在报告中，
// 不会中断扫描，也不会回滚已回收的记录。ctx 取消时返回断点
func (e *EvictionEngine) Sweep(ctx context.Context, opts SweepOptions) (*models.SweepReport, error) {
	kind := opts.Kind
	if kind == "" {
		kind = models.KindCustomer
	}
	if err := validKind(kind); err != nil {
		return nil, err
	}

	policy := models.EvictionPolicy{NoFollowUpDays: opts.NoFollowUpDays, NoOrderDays: opts.NoOrderDays}
	if !policy.Valid() {
		p, err := e.Policy(ctx)
		if err != nil {
			utils.Logger.Warn().Err(err).Msg("读取回收配置失败，使用默认阈值")
		}
		policy = p
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = e.batchSize
	}
	if batch <= 0 {
		batch = 200
	}

	ctx, span := e.tracer.Start(ctx, "eviction.sweep")
	defer span.End()

	start := time.Now()
	now := e.journal.now()
	report := &models.SweepReport{
		RunID:     e.journal.newID(),
		StartedAt: now,
		Released:  []string{},
		Failed:    map[string]string{},
	}
	span.SetAttributes(
		attribute.String("sweep.run_id", report.RunID),
		attribute.String("sweep.kind", string(kind)),
		attribute.Int("sweep.no_follow_up_days", policy.NoFollowUpDays),
		attribute.Int("sweep.no_order_days", policy.NoOrderDays),
	)
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	stale := models.NewStaleness(now, policy.NoFollowUpDays, policy.NoOrderDays)
	logger := utils.Logger.With().Str("runId", report.RunID).Str("kind", string(kind)).Logger()
	logger.Info().
		Int("noFollowUpDays", policy.NoFollowUpDays).
		Int("noOrderDays", policy.NoOrderDays).
		Str("resumeAfter", opts.ResumeAfter).
		Msg("开始公海自动回收")

	after := opts.ResumeAfter
scan:
	for {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		page, err := e.store.Scan(ctx, kind, models.RecordQuery{
			PoolState:   models.PoolStatePrivate,
			Stale:       &stale,
			ResumeAfter: after,
			Limit:       batch,
		})
		if err != nil {
			if ctx.Err() != nil {
				report.Cancelled = true
				break
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
			return report, fmt.Errorf("eviction scan: %w", err)
		}

		for _, r := range page {
			if ctx.Err() != nil {
				report.Cancelled = true
				break scan
			}
			report.Scanned++
			released, err := e.evictOne(ctx, kind, r.ID, stale)
			switch {
			case err != nil:
				report.Failed[r.ID] = err.Error()
				evictionFailures.WithLabelValues(string(kind)).Inc()
				logger.Warn().Err(err).Str("id", r.ID).Msg("回收失败，继续处理")
			case released:
				report.Released = append(report.Released, r.ID)
				evictedTotal.WithLabelValues(string(kind)).Inc()
			}
			report.LastID = r.ID
			after = r.ID
		}
		if len(page) < batch {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.released", len(report.Released)),
		attribute.Int("sweep.failed", len(report.Failed)),
		attribute.Bool("sweep.cancelled", report.Cancelled),
	)
	logger.Info().
		Int("scanned", report.Scanned).
		Int("released", len(report.Released)).
		Int("failed", len(report.Failed)).
		Bool("cancelled", report.Cancelled).
		Str("lastId", report.LastID).
		Msg("公海自动回收完成")
	return report, nil
}

// evictOne 写入时重新判定过期，扫描之后刚被跟进或认领的记录不会被回收
func (e *EvictionEngine) evictOne(ctx context.Context, kind models.RecordKind, id string, stale models.Staleness) (bool, error) {
	now := e.journal.now()
	before, after, err := e.ownership.transition(ctx, kind, id, string(models.OpEvict), func(cur models.SalesRecord) (models.SalesRecord, bool, error) {
		if cur.IsPublic() || !stale.Matches(&cur) {
			return cur, false, nil
		}
		next, changed := cur.Release(models.ReasonAutoEvicted, utils.SystemUser.ID, now)
		return next, changed, nil
	})
	if err != nil {
		// 扫描后被删除或合并的记录不算失败
		if errors.Is(err, utils.ErrNotFound) {
			return false, nil
		}
		e.journal.failed(kind, models.OpEvict, err)
		return false, err
	}
	if before == after {
		return false, nil
	}
	e.journal.committed(ctx, kind, models.OpEvict, before, after, models.ReasonAutoEvicted, utils.SystemUser)
	return true, nil
}
