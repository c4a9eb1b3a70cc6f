package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderwatch/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewTracker(nil, st, 168), st
}

func baseSignal(id string) store.Signal {
	now := time.Now()
	return store.Signal{
		ID: id, Coin: "BTC", Direction: store.Long,
		EntryPrice: 50000, CurrentPrice: 50000,
		StopLoss: 48000, TakeProfit1: 52000, TakeProfit2: 54000, TakeProfit3: 56000,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
}

func TestEvaluateSignal_StopLossClosesLong(t *testing.T) {
	tr, st := newTestTracker(t)
	sig := baseSignal("s1")
	require.NoError(t, st.UpsertSignal(sig))

	tr.evaluateSignal(&sig, 47000)

	got, err := st.GetSignal("s1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, store.OutcomeStopped, *got.Outcome)
	assert.True(t, got.HitStop)
}

func TestEvaluateSignal_TP3ClosesWithOutcome(t *testing.T) {
	tr, st := newTestTracker(t)
	sig := baseSignal("s2")
	require.NoError(t, st.UpsertSignal(sig))

	tr.evaluateSignal(&sig, 57000)

	got, err := st.GetSignal("s2")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, store.OutcomeTP3, *got.Outcome)
	assert.True(t, got.HitTP3)
}

func TestEvaluateSignal_TP1HitButStillActive(t *testing.T) {
	tr, st := newTestTracker(t)
	sig := baseSignal("s3")
	require.NoError(t, st.UpsertSignal(sig))

	tr.evaluateSignal(&sig, 52500)

	got, err := st.GetSignal("s3")
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.HitTP1)
	assert.False(t, got.HitTP3)
}

func TestEvaluateSignal_ExpiresAfterMaxHours(t *testing.T) {
	tr, st := newTestTracker(t)
	sig := baseSignal("s4")
	sig.CreatedAt = time.Now().Add(-200 * time.Hour)
	require.NoError(t, st.UpsertSignal(sig))

	tr.evaluateSignal(&sig, 50500)

	got, err := st.GetSignal("s4")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, store.OutcomeExpired, *got.Outcome)
}

func TestEvaluateSignal_ShortDirectionStopAndTPInverted(t *testing.T) {
	tr, st := newTestTracker(t)
	sig := baseSignal("s5")
	sig.Direction = store.Short
	sig.StopLoss = 52000
	sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3 = 48000, 46000, 44000
	require.NoError(t, st.UpsertSignal(sig))

	tr.evaluateSignal(&sig, 53000)

	got, err := st.GetSignal("s5")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.HitStop)
}

func TestRollAssetPerformance_AccumulatesAcrossSignals(t *testing.T) {
	tr, st := newTestTracker(t)
	sig1 := baseSignal("p1")
	require.NoError(t, st.UpsertSignal(sig1))
	tr.evaluateSignal(&sig1, 47000) // stopped, negative pnl

	sig2 := baseSignal("p2")
	require.NoError(t, st.UpsertSignal(sig2))
	tr.evaluateSignal(&sig2, 57000) // tp3, positive pnl

	perf, err := st.GetAssetPerformance("BTC")
	require.NoError(t, err)
	assert.Equal(t, 2, perf.TotalSignals)
	assert.Equal(t, 1, perf.WinningSignals)
	assert.Equal(t, 0.5, perf.WinRate)
}
