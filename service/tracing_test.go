package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BerniceZTT/crm_pool/models"
)

func newTracedFixture(t *testing.T) (*fixture, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := buildFixture(t, fixtureSetup{tune: func(o *Options) { o.TracerProvider = tp }})
	return f, recorder
}

func endedSpan(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.FailNow(t, "span not recorded", name)
	return nil
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestSweepRecordsSpan(t *testing.T) {
	f, recorder := newTracedFixture(t)
	f.agedCustomer("Stale Co", alice, 60, 10)

	report, err := f.svc.Eviction.Sweep(f.ctx, SweepOptions{Kind: models.KindCustomer, NoFollowUpDays: 30, NoOrderDays: 90})
	require.NoError(t, err)

	span := endedSpan(t, recorder, "eviction.sweep")
	a := attrs(span)
	assert.Equal(t, report.RunID, a["sweep.run_id"].AsString())
	assert.EqualValues(t, 1, a["sweep.scanned"].AsInt64())
	assert.EqualValues(t, 1, a["sweep.released"].AsInt64())
	assert.EqualValues(t, 30, a["sweep.no_follow_up_days"].AsInt64())
}

func TestPartialMergeMarksSpanError(t *testing.T) {
	f, recorder := newTracedFixture(t)
	survivor := f.customer("ACME-001", alice)

	_, err := f.svc.Merge.Merge(f.ctx, survivor.ID, []string{"missing"}, manager)
	require.Error(t, err)

	span := endedSpan(t, recorder, "merge.customers")
	assert.Equal(t, codes.Error, span.Status().Code)
	a := attrs(span)
	assert.Equal(t, survivor.ID, a["merge.survivor"].AsString())
	assert.EqualValues(t, 1, a["merge.failed"].AsInt64())
}
