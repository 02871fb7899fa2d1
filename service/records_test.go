package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"
)

// scriptedSequence 依次返回预设的序号，用完后重复最后一个
type scriptedSequence struct {
	mu   sync.Mutex
	next []int64
}

func (s *scriptedSequence) Next(context.Context, string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next[0]
	if len(s.next) > 1 {
		s.next = s.next[1:]
	}
	return n, nil
}

func TestCreateAssignsDatedCodes(t *testing.T) {
	f := newFixture(t)

	c1 := f.customer("ACME", alice)
	c2 := f.customer("Globex", alice)
	l1 := f.lead("Initech", alice)

	assert.Equal(t, "CUST20240601000001", c1.Code)
	assert.Equal(t, "CUST20240601000002", c2.Code)
	assert.Equal(t, "LEAD20240601000001", l1.Code)

	f.clock.Advance(24 * time.Hour)
	assert.Equal(t, "CUST20240602000001", f.customer("Hooli", alice).Code)
}

func TestCreateCustomerOwnership(t *testing.T) {
	f := newFixture(t)

	private := f.record(models.KindCustomer, f.customer("ACME", alice).ID)
	assert.Equal(t, models.PoolStatePrivate, private.PoolState)
	assert.Equal(t, alice.ID, private.OwnerID)

	public := f.record(models.KindCustomer, f.publicCustomer("Globex").ID)
	assert.Equal(t, models.PoolStatePublic, public.PoolState)
	assert.Empty(t, public.OwnerID)
	require.NotNil(t, public.PoolEntryTime)

	_, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "   "}, alice)
	var apiErr *utils.ApiError
	assert.ErrorAs(t, err, &apiErr)
}

func TestCreateCustomerDuplicateName(t *testing.T) {
	f := newFixture(t)
	f.customerWith(models.CustomerCreateRequest{Name: "ACME", Region: "Shanghai"})

	_, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: " acme ", Region: "Shanghai"}, bob)
	assert.ErrorIs(t, err, utils.ErrDuplicateName)

	_, err = f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "ACME", Region: "Beijing"}, bob)
	assert.NoError(t, err, "same name in another region is a separate customer")

	f.lead("Initech", alice)
	_, err = f.svc.Records.CreateLead(f.ctx, models.LeadCreateRequest{Name: "INITECH"}, bob)
	assert.ErrorIs(t, err, utils.ErrDuplicateName)
}

func TestCreateCustomerRequiresParent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "Sub", ParentCustomerID: "missing"}, alice)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestCreateRetriesCodeCollision(t *testing.T) {
	f := newFixtureWith(t, &scriptedSequence{next: []int64{1, 1, 2}}, nil)
	collisions := testutil.ToFloat64(codeCollisions)

	first := f.customer("ACME", alice)
	second := f.customer("Globex", alice)

	assert.Equal(t, "CUST20240601000001", first.Code)
	assert.Equal(t, "CUST20240601000002", second.Code)
	assert.Equal(t, collisions+1, testutil.ToFloat64(codeCollisions))
	assert.Equal(t, []models.OwnershipOperation{models.OpCreate}, f.history(models.KindCustomer, second.ID))
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixtureWith(t, &scriptedSequence{next: []int64{7}}, nil)
	f.customer("ACME", alice)

	_, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "Globex"}, alice)
	assert.ErrorIs(t, err, utils.ErrDuplicateCode)

	total, err := f.store.Count(f.ctx, models.KindCustomer, models.RecordQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestSetParentRejectsCycles(t *testing.T) {
	f := newFixture(t)
	group := f.customer("Group", alice)
	region := f.customer("Region", alice)
	branch := f.customer("Branch", alice)

	_, err := f.svc.Records.SetParent(f.ctx, region.ID, group.ID, alice)
	require.NoError(t, err)
	updated, err := f.svc.Records.SetParent(f.ctx, branch.ID, region.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, region.ID, updated.ParentCustomerID)

	_, err = f.svc.Records.SetParent(f.ctx, group.ID, group.ID, alice)
	assert.ErrorIs(t, err, utils.ErrCycleDetected)

	_, err = f.svc.Records.SetParent(f.ctx, group.ID, branch.ID, alice)
	assert.ErrorIs(t, err, utils.ErrCycleDetected)

	stored, err := f.svc.Records.GetCustomer(f.ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ParentCustomerID)

	subs, err := f.svc.Records.Subsidiaries(f.ctx, region.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, branch.ID, subs[0].ID)

	cleared, err := f.svc.Records.SetParent(f.ctx, branch.ID, "", alice)
	require.NoError(t, err)
	assert.Empty(t, cleared.ParentCustomerID)
}

// gatedParentStore 让前两次上级写入在同一点汇合，两个请求都在对方写入前完成环检查
type gatedParentStore struct {
	*repository.MemoryStore
	gate  sync.WaitGroup
	calls atomic.Int32
}

func (s *gatedParentStore) SetParent(ctx context.Context, id string, version int64, parentID string,
	fence map[string]int64, by string, now time.Time) error {
	if s.calls.Add(1) <= 2 {
		s.gate.Done()
		s.gate.Wait()
	}
	return s.MemoryStore.SetParent(ctx, id, version, parentID, fence, by, now)
}

func TestConcurrentSetParentCannotFormCycle(t *testing.T) {
	gated := &gatedParentStore{}
	gated.gate.Add(2)
	f := buildFixture(t, fixtureSetup{wrap: func(m *repository.MemoryStore) repository.Store {
		gated.MemoryStore = m
		return gated
	}})
	a := f.customer("A Corp", alice)
	b := f.customer("B Corp", alice)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		i, pair := i, pair
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.Records.SetParent(f.ctx, pair[0], pair[1], alice)
		}()
	}
	wg.Wait()

	var ok, cycles int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, utils.ErrCycleDetected):
			cycles++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, cycles)

	storedA, err := f.store.GetCustomer(f.ctx, a.ID)
	require.NoError(t, err)
	storedB, err := f.store.GetCustomer(f.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, storedA.ParentCustomerID == b.ID && storedB.ParentCustomerID == a.ID, "A and B point at each other")
	assert.True(t, storedA.ParentCustomerID == "" || storedB.ParentCustomerID == "")
}

func TestSetParentToCurrentParentIsNoop(t *testing.T) {
	f := newFixture(t)
	group := f.customer("Group", alice)
	branch := f.customer("Branch", alice)

	first, err := f.svc.Records.SetParent(f.ctx, branch.ID, group.ID, alice)
	require.NoError(t, err)
	again, err := f.svc.Records.SetParent(f.ctx, branch.ID, group.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
}

func TestCreateWithoutOperator(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "Orphan Co"}, nil)
	var apiErr *utils.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.ErrorCode)

	_, err = f.svc.Records.CreateLead(f.ctx, models.LeadCreateRequest{Name: "Orphan lead"}, nil)
	require.ErrorAs(t, err, &apiErr)

	total, err := f.store.Count(f.ctx, models.KindCustomer, models.RecordQuery{})
	require.NoError(t, err)
	assert.Zero(t, total, "no ownerless private record is stored")

	// 公海记录不需要负责人
	pub, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: "Pool Co", Public: true}, nil)
	require.NoError(t, err)
	assert.True(t, f.record(models.KindCustomer, pub.ID).IsPublic())
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	c := f.customer("ACME", alice)

	require.NoError(t, f.svc.Records.SoftDelete(f.ctx, models.KindCustomer, c.ID, manager))

	_, err := f.svc.Records.Get(f.ctx, models.KindCustomer, c.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
	_, err = f.svc.Ownership.Release(f.ctx, models.KindCustomer, c.ID, "", manager)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	// 历史保留
	assert.Equal(t, []models.OwnershipOperation{models.OpCreate, models.OpDelete}, f.history(models.KindCustomer, c.ID))

	err = f.svc.Records.SoftDelete(f.ctx, models.KindCustomer, c.ID, manager)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestTouchContactNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	c := f.customer("ACME", alice)
	now := f.clock.Now()

	r, err := f.svc.Records.TouchContact(f.ctx, models.KindCustomer, c.ID, now.Add(-time.Hour), alice)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Hour), *r.LastContactTime)

	r, err = f.svc.Records.TouchContact(f.ctx, models.KindCustomer, c.ID, now.Add(-48*time.Hour), alice)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Hour), *r.LastContactTime)

	r, err = f.svc.Records.TouchContact(f.ctx, models.KindCustomer, c.ID, time.Time{}, alice)
	require.NoError(t, err)
	assert.Equal(t, now, *r.LastContactTime)

	o, err := f.svc.Records.RecordOrder(f.ctx, c.ID, now.Add(-time.Minute), alice)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Minute), *o.LastOrderTime)
	o, err = f.svc.Records.RecordOrder(f.ctx, c.ID, now.Add(-time.Hour), alice)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-time.Minute), *o.LastOrderTime)
}

func TestSetFlagsAndStats(t *testing.T) {
	f := newFixture(t)
	key := f.customer("ACME", alice)
	f.customer("Globex", alice)
	f.customer("Initech", bob)
	f.publicCustomer("Hooli")

	yes := true
	updated, err := f.svc.Records.SetFlags(f.ctx, key.ID, &yes, nil, alice)
	require.NoError(t, err)
	assert.True(t, updated.IsKey)
	assert.False(t, updated.IsBlacklist)

	stats, err := f.svc.Records.Stats(f.ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.PrivateCount)
	assert.EqualValues(t, 1, stats.KeyCount)
	assert.EqualValues(t, 1, stats.PublicPoolCount)

	all, err := f.svc.Records.Stats(f.ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, all.PrivateCount)
	assert.EqualValues(t, 4, all.TotalCount)

	_, err = f.svc.Records.SetFlags(f.ctx, "missing", &yes, nil, alice)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestListPool(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"P1", "P2", "P3"} {
		f.publicCustomer(name)
	}
	f.customer("Private", alice)

	page, total, err := f.svc.Records.ListPool(f.ctx, models.KindCustomer, "", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	for _, r := range page {
		assert.Equal(t, models.PoolStatePublic, r.PoolState)
	}

	rest, _, err := f.svc.Records.ListPool(f.ctx, models.KindCustomer, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotContains(t, []string{page[0].ID, page[1].ID}, rest[0].ID)
}

func TestContactsAndActivities(t *testing.T) {
	f := newFixture(t)
	c := f.customer("ACME", alice)

	contact, err := f.svc.Records.AddContact(f.ctx, c.ID, models.Contact{Name: "Wile E."})
	require.NoError(t, err)
	assert.NotEmpty(t, contact.ID)
	assert.Equal(t, c.ID, contact.CustomerID)

	activity, err := f.svc.Records.AddActivity(f.ctx, c.ID, models.Activity{Type: "visit", Subject: "site visit"}, alice)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, activity.CreatorID)
	assert.Equal(t, f.clock.Now(), activity.OccurredAt)

	contacts, err := f.svc.Records.Contacts(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
	activities, err := f.svc.Records.Activities(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, activities, 1)

	_, err = f.svc.Records.AddContact(f.ctx, "missing", models.Contact{Name: "Nobody"})
	assert.ErrorIs(t, err, utils.ErrNotFound)
}
