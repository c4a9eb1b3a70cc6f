package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRealtimeFill_IdempotentOnTxHash(t *testing.T) {
	s := newTestStore(t)
	f := RealtimeFill{TxHash: "0xhash1", Address: "0xabc", Coin: "BTC", Side: "B", Time: time.Now()}
	require.NoError(t, s.UpsertRealtimeFill(f))
	require.NoError(t, s.UpsertRealtimeFill(f))

	has, err := s.HasRealtimeFill("0xhash1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasRealtimeFill("0xnonexistent")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCoinVolatility_UpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	v := CoinVolatility{Coin: "BTC", ATR14d: 500, ATR7d: 600, VolatilityRank: 80, LastPrice: 50000, UpdatedAt: time.Now()}
	require.NoError(t, s.UpsertCoinVolatility(v))

	got, err := s.GetCoinVolatility("BTC")
	require.NoError(t, err)
	assert.Equal(t, 500.0, got.ATR14d)

	v.ATR14d = 550
	require.NoError(t, s.UpsertCoinVolatility(v))
	got, err = s.GetCoinVolatility("BTC")
	require.NoError(t, err)
	assert.Equal(t, 550.0, got.ATR14d)
}

func TestFundingContext_ClassificationRoundTrips(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertFundingContext(FundingContext{Coin: "ETH", FundingRate8h: 0.0002, Classification: FundingFavorable, UpdatedAt: time.Now()}))

	got, err := s.GetFundingContext("ETH")
	require.NoError(t, err)
	assert.Equal(t, FundingFavorable, got.Classification)
}

func TestAssetPerformance_DefaultsWhenMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAssetPerformance("SOL")
	require.NoError(t, err)
	assert.Equal(t, "SOL", got.Coin)
	assert.Equal(t, 0, got.TotalSignals)
}

func TestAssetPerformance_UpsertUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertAssetPerformance(AssetPerformance{Coin: "SOL", TotalSignals: 3, WinningSignals: 2, WinRate: 0.66}))
	require.NoError(t, s.UpsertAssetPerformance(AssetPerformance{Coin: "SOL", TotalSignals: 4, WinningSignals: 3, WinRate: 0.75}))

	got, err := s.GetAssetPerformance("SOL")
	require.NoError(t, err)
	assert.Equal(t, 4, got.TotalSignals)
	assert.Equal(t, 0.75, got.WinRate)
}
