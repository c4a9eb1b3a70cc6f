package quality

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderwatch/config"
	"traderwatch/exchange"
	"traderwatch/store"
)

// newEvaluatorFixture wires an Evaluator against a single httptest server
// that answers both clearinghouseState and userFills by request "type",
// and a real in-memory store, mirroring the live client/store pairing.
func newEvaluatorFixture(t *testing.T, accountValue float64, fills []exchange.Fill) (*Evaluator, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		switch body["type"] {
		case "clearinghouseState":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"marginSummary":  map[string]interface{}{"accountValue": accountValue},
				"assetPositions": []interface{}{},
			})
		case "userFills":
			json.NewEncoder(w).Encode(fills)
		default:
			w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		EliteTier: config.TierThresholds{MinRoi7dPct: 20, MinWinRate: 0.55, MinProfitFactor: 1.5, MinTrades: 5, MinAccountValue: 5000},
		GoodTier:  config.TierThresholds{MinRoi7dPct: 5, MinWinRate: 0.45, MinProfitFactor: 1.0, MinTrades: 2, MinAccountValue: 1000},
	}
	return NewEvaluator(exchange.NewClient(srv.URL), st, cfg), st
}

func TestEvaluate_PersistsTraderQualityFromFills(t *testing.T) {
	now := time.Now()
	fills := []exchange.Fill{
		{Coin: "BTC", Side: "A", Sz: 1, Px: 52000, Time: now.Add(-2 * 24 * time.Hour).UnixMilli(), ClosedPnl: 2000, Hash: "0x1", Oid: 1},
		{Coin: "BTC", Side: "A", Sz: 1, Px: 53000, Time: now.Add(-1 * 24 * time.Hour).UnixMilli(), ClosedPnl: 1500, Hash: "0x2", Oid: 2},
	}
	ev, st := newEvaluatorFixture(t, 50000, fills)

	err := ev.Evaluate(context.Background(), "0x00000000000000000000000000000000000abc")
	require.NoError(t, err)

	q, err := st.GetTraderQuality("0x00000000000000000000000000000000000abc")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 50000.0, q.AccountValue)
	assert.Equal(t, 2, q.TotalTrades)
	assert.Equal(t, "realized_sum_filtered", q.PnlCalcMethod7d)
}

func TestEvaluate_RecordsTierChangeOnDelta(t *testing.T) {
	ev, st := newEvaluatorFixture(t, 50000, nil)
	require.NoError(t, st.UpsertWallet("0x00000000000000000000000000000000000abc"))
	require.NoError(t, st.UpsertTraderQuality(store.TraderQuality{Address: "0x00000000000000000000000000000000000abc", Tier: store.TierGood, AnalyzedAt: time.Now()}))

	require.NoError(t, ev.Evaluate(context.Background(), "0x00000000000000000000000000000000000abc"))

	q, err := st.GetTraderQuality("0x00000000000000000000000000000000000abc")
	require.NoError(t, err)
	assert.Equal(t, store.TierWeak, q.Tier, "zero trades over the window no longer meets good thresholds")
	assert.Equal(t, 1, q.TierChangeCount, "the good->weak transition must append a tier_changes row")
}

func TestEvaluate_ClearinghouseUnavailableDoesNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg := &config.Config{}
	ev := NewEvaluator(exchange.NewClient(srv.URL), st, cfg)

	err = ev.Evaluate(context.Background(), "0x00000000000000000000000000000000000abc")
	assert.NoError(t, err, "an upstream outage must not abort the evaluation pass")
}

func TestBatchEvaluate_ContinuesPastPerAddressFailure(t *testing.T) {
	ev, st := newEvaluatorFixture(t, 10000, nil)
	require.NoError(t, st.UpsertWallet("0x00000000000000000000000000000000000abc"))
	require.NoError(t, st.UpsertWallet("0x00000000000000000000000000000000000def"))

	ev.BatchEvaluate(context.Background(), []string{"0x00000000000000000000000000000000000abc", "0x00000000000000000000000000000000000def"})

	q1, err := st.GetTraderQuality("0x00000000000000000000000000000000000abc")
	require.NoError(t, err)
	require.NotNil(t, q1)
	q2, err := st.GetTraderQuality("0x00000000000000000000000000000000000def")
	require.NoError(t, err)
	require.NotNil(t, q2)
}

func TestWeeklyReEvaluate_DemotesOnSustainedDrawdown(t *testing.T) {
	ev, st := newEvaluatorFixture(t, 10000, nil)
	require.NoError(t, st.UpsertWallet("0x00000000000000000000000000000000000abc"))
	require.NoError(t, st.UpsertTraderQuality(store.TraderQuality{
		Address: "0x00000000000000000000000000000000000abc", Tier: store.TierElite, IsTracked: true, AccountValue: 50000,
		Roi7dPct: 25, WinRate: 0.6, TotalTrades: 10, AnalyzedAt: time.Now(),
	}))

	ev.WeeklyReEvaluate(context.Background(), []string{"0x00000000000000000000000000000000000abc"},
		map[string]float64{"0x00000000000000000000000000000000000abc": 80}, map[string]bool{"0x00000000000000000000000000000000000abc": true})

	q, err := st.GetTraderQuality("0x00000000000000000000000000000000000abc")
	require.NoError(t, err)
	assert.Equal(t, store.TierGood, q.Tier, "80% sustained drawdown demotes elite to good")
}
