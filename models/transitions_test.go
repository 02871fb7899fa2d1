package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func privateRecord(owner string) SalesRecord {
	return newSalesRecord("r1", "CUST20240601000001", "Acme", "", "", owner, false, base)
}

func TestNewSalesRecord(t *testing.T) {
	t.Run("private record is owned by creator", func(t *testing.T) {
		r := newSalesRecord("r1", "c", "  Acme Ltd ", " 9133 ", " North ", "u1", false, base)
		assert.Equal(t, PoolStatePrivate, r.PoolState)
		assert.Equal(t, "u1", r.OwnerID)
		assert.Equal(t, "Acme Ltd", r.Name)
		assert.Equal(t, "acme ltd", r.NameKey)
		assert.Equal(t, "9133", r.RegistrationID)
		assert.Equal(t, "North", r.Region)
		assert.True(t, r.Consistent())
	})

	t.Run("public record has no owner", func(t *testing.T) {
		r := newSalesRecord("r1", "c", "Acme", "", "", "u1", true, base)
		assert.Equal(t, PoolStatePublic, r.PoolState)
		assert.Empty(t, r.OwnerID)
		require.NotNil(t, r.PoolEntryTime)
		assert.True(t, r.Consistent())
	})
}

func TestTransitionsKeepPoolStateConsistent(t *testing.T) {
	now := base.Add(time.Hour)
	r := privateRecord("u1")

	released, changed := r.Release("manual", "u1", now)
	require.True(t, changed)
	assert.True(t, released.Consistent())
	assert.Equal(t, "manual", released.PoolEntryReason)
	assert.Equal(t, now, *released.PoolEntryTime)
	// 原记录不受影响
	assert.Equal(t, "u1", r.OwnerID)

	_, changed = released.Release("again", "u1", now)
	assert.False(t, changed, "releasing a public record is a no-op")

	claimed, ok := released.Claim("u2", now)
	require.True(t, ok)
	assert.True(t, claimed.Consistent())
	assert.Equal(t, "u2", claimed.OwnerID)
	assert.Nil(t, claimed.PoolEntryTime)
	assert.Empty(t, claimed.PoolEntryReason)

	_, ok = claimed.Claim("u3", now)
	assert.False(t, ok, "private record cannot be claimed")

	assigned := released.Assign("u4", "admin", now)
	assert.True(t, assigned.Consistent())
	assert.Equal(t, "u4", assigned.OwnerID)
	assert.Equal(t, "admin", assigned.UpdatedBy)

	transferred, ok := assigned.Transfer("u4", "u5", "admin", now)
	require.True(t, ok)
	assert.True(t, transferred.Consistent())
	assert.Equal(t, "u5", transferred.OwnerID)
}

func TestTransferRequiresCurrentOwner(t *testing.T) {
	r := privateRecord("u1")

	next, ok := r.Transfer("u2", "u3", "admin", base)
	assert.False(t, ok)
	assert.Equal(t, "u1", next.OwnerID)

	pub, _ := r.Release("", "u1", base)
	_, ok = pub.Transfer("", "u3", "admin", base)
	assert.False(t, ok, "public record has no owner to transfer from")
}

func TestRetireAndTouch(t *testing.T) {
	r := privateRecord("u1")
	later := base.Add(time.Minute)

	retired := r.Retire("survivor", "admin", later)
	assert.True(t, retired.Deleted)
	assert.Equal(t, "survivor", retired.MergedInto)
	assert.Equal(t, later, retired.UpdatedAt)

	touched := r.Touch("", later)
	assert.Equal(t, later, touched.UpdatedAt)
	assert.Equal(t, r.UpdatedBy, touched.UpdatedBy)
	touched.UpdatedAt = r.UpdatedAt
	assert.Equal(t, r, touched)
}

func TestStaleness(t *testing.T) {
	now := base
	stale := NewStaleness(now, 30, 90)
	ago := func(days int) *time.Time {
		at := now.AddDate(0, 0, -days)
		return &at
	}

	tests := []struct {
		name    string
		record  SalesRecord
		matches bool
	}{
		{
			name:    "contact 40 days ago",
			record:  SalesRecord{CreatedAt: *ago(200), LastContactTime: ago(40), LastOrderTime: ago(10)},
			matches: true,
		},
		{
			name:    "recent contact and order",
			record:  SalesRecord{CreatedAt: *ago(200), LastContactTime: ago(10), LastOrderTime: ago(10)},
			matches: false,
		},
		{
			name:    "order 100 days ago",
			record:  SalesRecord{CreatedAt: *ago(200), LastContactTime: ago(1), LastOrderTime: ago(100)},
			matches: true,
		},
		{
			name:    "never contacted, created recently",
			record:  SalesRecord{CreatedAt: *ago(5)},
			matches: false,
		},
		{
			name:    "never ordered, created long ago",
			record:  SalesRecord{CreatedAt: *ago(120), LastContactTime: ago(1)},
			matches: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.matches, stale.Matches(&tt.record))
		})
	}
}

func TestLeadConvertIsWriteOnce(t *testing.T) {
	l := NewLead("l1", "LEAD20240601000001", LeadCreateRequest{Name: "Lead"}, "u1", base)
	next := base.Add(24 * time.Hour)
	l.NextFollowTime = &next

	converted, ok := l.Convert("c1", "u1", base.Add(time.Hour))
	require.True(t, ok)
	assert.Equal(t, LeadStatusConverted, converted.Status)
	assert.Equal(t, "c1", converted.ConvertedCustomerID)
	assert.Nil(t, converted.NextFollowTime)

	again, ok := converted.Convert("c2", "u1", base.Add(2*time.Hour))
	assert.False(t, ok)
	assert.Equal(t, "c1", again.ConvertedCustomerID)
	assert.Equal(t, *converted.ConvertedAt, *again.ConvertedAt)
}

func TestLeadApplyFollowUp(t *testing.T) {
	l := NewLead("l1", "LEAD20240601000001", LeadCreateRequest{Name: "Lead"}, "u1", base)
	assert.Equal(t, LeadPriorityMedium, l.Priority)
	assert.Equal(t, LeadStatusNew, l.Status)

	next := base.Add(72 * time.Hour)
	at := base.Add(time.Hour)
	updated := l.ApplyFollowUp(FollowUpInput{
		Content:        "called",
		FollowTime:     at,
		ScoreChange:    15,
		StatusChange:   LeadStatusContacted,
		NextFollowTime: &next,
	}, "u1", base.Add(2*time.Hour))

	assert.Equal(t, at, *updated.LastContactTime)
	assert.Equal(t, 15, updated.Score)
	assert.Equal(t, LeadStatusContacted, updated.Status)
	assert.Equal(t, next, *updated.NextFollowTime)

	closed := updated.ApplyFollowUp(FollowUpInput{Content: "dead end", StatusChange: LeadStatusUnqualified, ScoreChange: -5}, "u1", base.Add(3*time.Hour))
	assert.Equal(t, 10, closed.Score)
	assert.Nil(t, closed.NextFollowTime, "terminal status clears the schedule")
	assert.Equal(t, base.Add(3*time.Hour), *closed.LastContactTime)
}

func TestBatchResult(t *testing.T) {
	r := &BatchResult{Outcomes: []Outcome{{ID: "a", OK: true}, {ID: "b", Code: "NOT_FOUND"}}}
	assert.Equal(t, 1, r.Succeeded())
	assert.Len(t, r.Failed(), 1)
	assert.True(t, r.Partial())

	all := &BatchResult{Outcomes: []Outcome{{ID: "a", OK: true}}}
	assert.False(t, all.Partial())
	assert.Empty(t, all.Failed())
}

func TestMatchStrengthOrdering(t *testing.T) {
	assert.Greater(t, MatchRegistrationID, MatchNameRegion)
	assert.Greater(t, MatchNameRegion, MatchNameOnly)
	text, err := MatchRegistrationID.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, MatchRegistrationID.String(), string(text))
}
