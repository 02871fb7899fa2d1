package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"
)

const day = 24 * time.Hour

// agedCustomer 创建于 200 天前，最近跟进与成单分别在 contactDays、orderDays 天前
func (f *fixture) agedCustomer(name string, owner *utils.LoginUser, contactDays, orderDays int) *models.Customer {
	f.t.Helper()
	now := f.clock.Now()
	f.clock.Set(now.Add(-200 * day))
	c := f.customer(name, owner)
	f.clock.Set(now)

	_, err := f.svc.Records.TouchContact(f.ctx, models.KindCustomer, c.ID, now.Add(-time.Duration(contactDays)*day), owner)
	require.NoError(f.t, err)
	_, err = f.svc.Records.RecordOrder(f.ctx, c.ID, now.Add(-time.Duration(orderDays)*day), owner)
	require.NoError(f.t, err)
	return c
}

func TestSweepReleasesOnlyStaleRecords(t *testing.T) {
	f := newFixture(t)
	stale := f.agedCustomer("Stale Co", alice, 40, 10)
	fresh := f.agedCustomer("Fresh Co", alice, 10, 10)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{Kind: models.KindCustomer, NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{stale.ID}, report.Released)
	assert.Empty(t, report.Failed)
	assert.False(t, report.Cancelled)
	assert.NotEmpty(t, report.RunID)

	r := f.record(models.KindCustomer, stale.ID)
	assert.True(t, r.IsPublic())
	assert.Equal(t, models.ReasonAutoEvicted, r.PoolEntryReason)
	assert.Equal(t, f.clock.Now(), *r.PoolEntryTime)

	kept := f.record(models.KindCustomer, fresh.ID)
	assert.Equal(t, alice.ID, kept.OwnerID)

	entries, err := f.store.ListHistory(f.ctx, models.KindCustomer, stale.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, models.OpEvict, last.OperationType)
	assert.Equal(t, utils.SystemUser.ID, last.OperatorID)
	assert.Equal(t, alice.ID, last.FromOwnerID)
}

func TestSweepUsesOrderThreshold(t *testing.T) {
	f := newFixture(t)
	noOrder := f.agedCustomer("No Orders", alice, 1, 120)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{noOrder.ID}, report.Released)
}

func TestSweepTreatsMissingTimesAsCreationTime(t *testing.T) {
	f := newFixture(t)
	older := f.customer("Never Contacted", alice)
	f.clock.Advance(45 * day)
	newer := f.customer("Brand New", bob)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{older.ID}, report.Released)
	assert.Equal(t, bob.ID, f.record(models.KindCustomer, newer.ID).OwnerID)
}

func TestSweepLeads(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(-100 * day)
	l := f.lead("Cold lead", alice)
	f.clock.Advance(100 * day)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{Kind: models.KindLead, NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)
	assert.Equal(t, []string{l.ID}, report.Released)
	assert.True(t, f.record(models.KindLead, l.ID).IsPublic())
}

func TestSweepPagesAndCheckpoints(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 7; i++ {
		ids = append(ids, f.agedCustomer("Stale "+string(rune('A'+i)), alice, 60, 10).ID)
	}
	sort.Strings(ids)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90, BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, report.Scanned)
	assert.Equal(t, ids, report.Released)
	assert.Equal(t, ids[len(ids)-1], report.LastID)
}

// failingSwapStore 对 failID 的写入返回存储错误
type failingSwapStore struct {
	*repository.MemoryStore
	failID string
}

func (s *failingSwapStore) Swap(ctx context.Context, kind models.RecordKind, next *models.SalesRecord) error {
	if next.ID == s.failID {
		return errors.New("write timed out")
	}
	return s.MemoryStore.Swap(ctx, kind, next)
}

func TestSweepContinuesPastFailedRecord(t *testing.T) {
	failing := &failingSwapStore{}
	f := buildFixture(t, fixtureSetup{wrap: func(m *repository.MemoryStore) repository.Store {
		failing.MemoryStore = m
		return failing
	}})
	var ids []string
	for _, name := range []string{"Stale A", "Stale B", "Stale C"} {
		ids = append(ids, f.agedCustomer(name, alice, 60, 10).ID)
	}
	sort.Strings(ids)
	failing.failID = ids[1]
	failuresBefore := testutil.ToFloat64(evictionFailures.WithLabelValues(string(models.KindCustomer)))

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err, "a single record failure does not abort the sweep")
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, []string{ids[0], ids[2]}, report.Released)
	require.Contains(t, report.Failed, ids[1])
	assert.Contains(t, report.Failed[ids[1]], "write timed out")
	assert.Equal(t, ids[2], report.LastID)
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(evictionFailures.WithLabelValues(string(models.KindCustomer))))

	kept := f.record(models.KindCustomer, ids[1])
	assert.Equal(t, alice.ID, kept.OwnerID)
	assert.NotContains(t, f.history(models.KindCustomer, ids[1]), models.OpEvict)
	for _, id := range []string{ids[0], ids[2]} {
		assert.True(t, f.record(models.KindCustomer, id).IsPublic())
	}
}

func TestSweepResumesAfterCheckpoint(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 4; i++ {
		ids = append(ids, f.agedCustomer("Stale "+string(rune('A'+i)), alice, 60, 10).ID)
	}
	sort.Strings(ids)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90, ResumeAfter: ids[1]})
	require.NoError(t, err)
	assert.Equal(t, ids[2:], report.Released)
	assert.Equal(t, alice.ID, f.record(models.KindCustomer, ids[0]).OwnerID)
}

func TestSweepStopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	c := f.agedCustomer("Stale", alice, 60, 10)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	report, err := f.svc.Eviction.Sweep(ctx, SweepOptions{NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.Empty(t, report.Released)
	assert.Equal(t, alice.ID, f.record(models.KindCustomer, c.ID).OwnerID)
}

func TestEvictRechecksAtWriteTime(t *testing.T) {
	f := newFixture(t)
	c := f.agedCustomer("Just contacted", alice, 1, 1)

	stale := models.NewStaleness(f.clock.Now(), 30, 90)
	released, err := f.svc.Eviction.evictOne(f.ctx, models.KindCustomer, c.ID, stale)
	require.NoError(t, err)
	assert.False(t, released)

	released, err = f.svc.Eviction.evictOne(f.ctx, models.KindCustomer, "deleted-meanwhile", stale)
	require.NoError(t, err, "records gone since the scan are skipped")
	assert.False(t, released)
}

func TestRuntimePolicyOverride(t *testing.T) {
	f := newFixture(t)

	policy, err := f.svc.Eviction.Policy(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.EvictionPolicy{NoFollowUpDays: 30, NoOrderDays: 90}, policy)

	_, err = f.svc.Eviction.UpdatePolicy(f.ctx, models.UpdateEvictionConfigRequest{NoFollowUpDays: 5, NoOrderDays: 365}, manager)
	require.NoError(t, err)
	policy, err = f.svc.Eviction.Policy(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, models.EvictionPolicy{NoFollowUpDays: 5, NoOrderDays: 365}, policy)

	c := f.agedCustomer("Ten days quiet", alice, 10, 10)
	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, report.Released)

	disabled := false
	_, err = f.svc.Eviction.UpdatePolicy(f.ctx, models.UpdateEvictionConfigRequest{NoFollowUpDays: 5, NoOrderDays: 365, IsEnabled: &disabled}, manager)
	require.NoError(t, err)
	policy, err = f.svc.Eviction.Policy(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, policy.NoFollowUpDays, "disabled override falls back to defaults")

	_, err = f.svc.Eviction.UpdatePolicy(f.ctx, models.UpdateEvictionConfigRequest{NoFollowUpDays: 0, NoOrderDays: 1}, manager)
	assert.Error(t, err)
}

func TestRunScheduledSweepCoversBothKinds(t *testing.T) {
	f := newFixture(t)
	c := f.agedCustomer("Stale customer", alice, 60, 10)
	f.clock.Advance(-100 * day)
	l := f.lead("Stale lead", alice)
	f.clock.Advance(100 * day)

	f.svc.Eviction.RunScheduledSweep(f.ctx)
	assert.True(t, f.record(models.KindCustomer, c.ID).IsPublic())
	assert.True(t, f.record(models.KindLead, l.ID).IsPublic())
}

func TestNextRunAt(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"later today", time.Date(2024, 6, 1, 1, 0, 0, 0, loc), time.Date(2024, 6, 1, 2, 0, 0, 0, loc)},
		{"already passed", time.Date(2024, 6, 1, 3, 0, 0, 0, loc), time.Date(2024, 6, 2, 2, 0, 0, 0, loc)},
		{"exactly now", time.Date(2024, 6, 1, 2, 0, 0, 0, loc), time.Date(2024, 6, 2, 2, 0, 0, 0, loc)},
		{"month end", time.Date(2024, 6, 30, 23, 0, 0, 0, loc), time.Date(2024, 7, 1, 2, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextRunAt(tt.now, 2, 0, 0))
		})
	}
}
