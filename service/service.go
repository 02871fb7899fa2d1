package service

import (
	"context"
	"errors"
	"time"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BerniceZTT/crm_pool/service"

// Options 服务层参数
type Options struct {
	BatchConcurrency int
	CASRetries       int
	CodeRetries      int
	NoFollowUpDays   int
	NoOrderDays      int
	SweepBatchSize   int
	// 为空时使用 time.Now
	Clock func() time.Time
	// 为空时使用全局 TracerProvider
	TracerProvider trace.TracerProvider
}

// DefaultOptions 与配置默认值一致
func DefaultOptions() Options {
	return Options{
		BatchConcurrency: 8,
		CASRetries:       5,
		CodeRetries:      3,
		NoFollowUpDays:   30,
		NoOrderDays:      90,
		SweepBatchSize:   200,
	}
}

// Services 全部业务组件
type Services struct {
	Codes      *CodeGenerator
	Duplicates *DuplicateDetector
	Ownership  *OwnershipRegistry
	Eviction   *EvictionEngine
	Merge      *MergeEngine
	Leads      *LeadCoordinator
	Records    *RecordService
}

// New 组装业务组件
func New(store repository.Store, seq repository.Sequence, pub repository.Publisher, opts Options) *Services {
	if pub == nil {
		pub = repository.NoopPublisher{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	j := &journal{history: store, publisher: pub, now: clock, newID: uuid.NewString}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(tracerName)

	codes := NewCodeGenerator(seq, j.now)
	ownership := &OwnershipRegistry{store: store, journal: j, concurrency: opts.BatchConcurrency, retries: opts.CASRetries}
	return &Services{
		Codes:      codes,
		Duplicates: &DuplicateDetector{store: store},
		Ownership:  ownership,
		Eviction: &EvictionEngine{
			store:     store,
			configs:   store,
			ownership: ownership,
			defaults:  models.EvictionPolicy{NoFollowUpDays: opts.NoFollowUpDays, NoOrderDays: opts.NoOrderDays},
			batchSize: opts.SweepBatchSize,
			journal:   j,
			tracer:    tracer,
		},
		Merge: &MergeEngine{store: store, children: store, ownership: ownership, journal: j, tracer: tracer},
		Leads: &LeadCoordinator{store: store, customers: store, followUps: store, journal: j, retries: opts.CASRetries},
		Records: &RecordService{
			store:     store,
			codes:     codes,
			ownership: ownership,
			journal:   j,
			retries:   opts.CodeRetries,
		},
	}
}

// journal 事务提交后的附带动作：历史、事件、日志与指标。
// 任何失败只记录日志，不影响已提交的变更
type journal struct {
	history   repository.HistoryLog
	publisher repository.Publisher
	now       func() time.Time
	newID     func() string
}

func (j *journal) committed(ctx context.Context, kind models.RecordKind, op models.OwnershipOperation,
	before, after *models.SalesRecord, reason string, operator *utils.LoginUser) {

	transitionsTotal.WithLabelValues(string(kind), string(op), "ok").Inc()

	var fromOwner string
	if before != nil {
		fromOwner = before.OwnerID
	}
	toOwner := after.OwnerID
	utils.LogTransition(string(op), string(kind), after.ID, fromOwner, toOwner, reason)

	now := j.now()
	h := &models.OwnershipHistory{
		ID:            j.newID(),
		Kind:          kind,
		RecordID:      after.ID,
		RecordName:    after.Name,
		FromOwnerID:   fromOwner,
		ToOwnerID:     toOwner,
		OperationType: op,
		Reason:        reason,
		CreatedAt:     now,
	}
	if operator != nil {
		h.OperatorID = operator.ID
		h.OperatorName = operator.Username
	}
	if err := j.history.AppendHistory(ctx, h); err != nil {
		utils.LogError("写入归属历史失败", err, map[string]interface{}{"id": after.ID, "op": op})
	}

	evt := models.OwnershipEvent{
		EventID:    j.newID(),
		Kind:       kind,
		RecordID:   after.ID,
		Operation:  op,
		FromOwner:  fromOwner,
		ToOwner:    toOwner,
		PoolState:  after.PoolState,
		Reason:     reason,
		OperatorID: h.OperatorID,
		OccurredAt: now,
	}
	if err := j.publisher.Publish(ctx, evt); err != nil {
		eventPublishFailures.Inc()
		utils.LogError("投递归属事件失败", err, map[string]interface{}{"id": after.ID, "op": op})
	}
}

func (j *journal) failed(kind models.RecordKind, op models.OwnershipOperation, err error) {
	code := string(utils.CodeOf(err))
	if code == "" {
		code = "INTERNAL"
	}
	transitionsTotal.WithLabelValues(string(kind), string(op), code).Inc()
}

// storeError 把存储层错误翻译为业务错误
func storeError(err error, op, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return &utils.RecordError{Code: utils.CodeNotFound, Op: op, RecordID: id, Err: err}
	case errors.Is(err, repository.ErrDuplicate):
		return &utils.RecordError{Code: utils.CodeDuplicateCode, Op: op, RecordID: id, Err: err}
	case errors.Is(err, repository.ErrStale):
		return &utils.RecordError{Code: utils.CodeConcurrentConflict, Op: op, RecordID: id, Err: err}
	}
	return err
}

func operatorID(u *utils.LoginUser) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func validKind(kind models.RecordKind) error {
	if !kind.Valid() {
		return utils.CreateBadRequestError("未知的记录类型: " + string(kind))
	}
	return nil
}
