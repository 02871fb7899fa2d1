package service

import (
	"context"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/utils"
)

// 每天指定时间执行任务，ctx 取消后退出
func ScheduleDailyTaskAt(ctx context.Context, hour, min, sec int, task func(context.Context)) {
	go func() {
		for {
			next := nextRunAt(time.Now(), hour, min, sec)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				task(ctx)
			}
		}
	}()
}

// nextRunAt 下一次执行时刻，今天已过则顺延一天
func nextRunAt(now time.Time, hour, min, sec int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunScheduledSweep 定时回收客户与线索，ctx 取消时停止
func (e *EvictionEngine) RunScheduledSweep(ctx context.Context) {
	utils.Logger.Info().Time("time", e.journal.now()).Msg("开始执行每日公海回收任务...")

	for _, kind := range []models.RecordKind{models.KindCustomer, models.KindLead} {
		report, err := e.Sweep(ctx, SweepOptions{Kind: kind})
		if err != nil {
			utils.LogError("公海回收任务失败", err, map[string]interface{}{"kind": kind})
			continue
		}
		if report.Cancelled {
			utils.Logger.Warn().Str("kind", string(kind)).Str("lastId", report.LastID).Msg("公海回收任务被中断")
			return
		}
	}

	utils.Logger.Info().Msg("每日公海回收任务完成")
}
