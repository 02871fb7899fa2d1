package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BerniceZTT/crm_pool/models"
	"github.com/BerniceZTT/crm_pool/repository"
	"github.com/BerniceZTT/crm_pool/utils"
)

var (
	manager = &utils.LoginUser{ID: "m1", Role: string(models.UserRoleSALES_MANAGER), Username: "manager"}
	alice   = &utils.LoginUser{ID: "u1", Role: string(models.UserRoleSALES), Username: "alice"}
	bob     = &utils.LoginUser{ID: "u2", Role: string(models.UserRoleSALES), Username: "bob"}
	carol   = &utils.LoginUser{ID: "u3", Role: string(models.UserRoleSALES), Username: "carol"}
)

// testClock 可手动推进的时钟
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher 记录已投递的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OwnershipEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt models.OwnershipEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) operations() []models.OwnershipOperation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.OwnershipOperation, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Operation)
	}
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, evt models.OwnershipEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *repository.MemoryStore
	clock  *testClock
	events *recordingPublisher
	svc    *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, repository.NewMemorySequence(), nil)
}

func newFixtureWith(t *testing.T, seq repository.Sequence, pub repository.Publisher) *fixture {
	t.Helper()
	return buildFixture(t, fixtureSetup{seq: seq, pub: pub})
}

// fixtureSetup 可选的依赖替换
type fixtureSetup struct {
	seq repository.Sequence
	pub repository.Publisher
	// wrap 包装内存存储以注入故障，f.store 仍指向底层存储
	wrap func(*repository.MemoryStore) repository.Store
	tune func(*Options)
}

func buildFixture(t *testing.T, setup fixtureSetup) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  repository.NewMemoryStore(),
		clock:  &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
		events: &recordingPublisher{},
	}
	seq := setup.seq
	if seq == nil {
		seq = repository.NewMemorySequence()
	}
	pub := setup.pub
	if pub == nil {
		pub = f.events
	}
	var store repository.Store = f.store
	if setup.wrap != nil {
		store = setup.wrap(f.store)
	}
	opts := DefaultOptions()
	opts.Clock = f.clock.Now
	if setup.tune != nil {
		setup.tune(&opts)
	}
	f.svc = New(store, seq, pub, opts)
	return f
}

func (f *fixture) customer(name string, owner *utils.LoginUser) *models.Customer {
	f.t.Helper()
	c, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: name}, owner)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) publicCustomer(name string) *models.Customer {
	f.t.Helper()
	c, err := f.svc.Records.CreateCustomer(f.ctx, models.CustomerCreateRequest{Name: name, Public: true}, manager)
	require.NoError(f.t, err)
	return c
}

func (f *fixture) lead(name string, owner *utils.LoginUser) *models.Lead {
	f.t.Helper()
	l, err := f.svc.Records.CreateLead(f.ctx, models.LeadCreateRequest{Name: name}, owner)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) record(kind models.RecordKind, id string) *models.SalesRecord {
	f.t.Helper()
	r, err := f.store.Get(f.ctx, kind, id)
	require.NoError(f.t, err)
	require.True(f.t, r.Consistent(), "pool state and owner disagree: %+v", r)
	return r
}

func (f *fixture) history(kind models.RecordKind, id string) []models.OwnershipOperation {
	f.t.Helper()
	entries, err := f.store.ListHistory(f.ctx, kind, id)
	require.NoError(f.t, err)
	out := make([]models.OwnershipOperation, 0, len(entries))
	for _, h := range entries {
		out = append(out, h.OperationType)
	}
	return out
}
