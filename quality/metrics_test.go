package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"traderwatch/exchange"
)

func TestExtractClosedTrades_FiltersZeroPnlAndWindow(t *testing.T) {
	now := time.Now()
	since := now.Add(-24 * time.Hour)
	fills := []exchange.Fill{
		{Coin: "BTC", Dir: "Open Long", ClosedPnl: 0, Time: since.Add(-time.Hour).UnixMilli()},
		{Coin: "BTC", Dir: "Close Long", ClosedPnl: 150, Time: since.Add(2 * time.Hour).UnixMilli()},
		{Coin: "ETH", Dir: "Close Long", ClosedPnl: 0, Time: since.Add(3 * time.Hour).UnixMilli()},
	}
	trades := ExtractClosedTrades(fills, since)
	assert.Len(t, trades, 1)
	assert.Equal(t, "BTC", trades[0].Coin)
	assert.Equal(t, 150.0, trades[0].ClosedPnl)
}

func TestExtractClosedTrades_PairsHoldTimeFromPriorOpen(t *testing.T) {
	since := time.Now().Add(-48 * time.Hour)
	openT := since.Add(time.Hour)
	closeT := openT.Add(3 * time.Hour)
	fills := []exchange.Fill{
		{Coin: "BTC", Dir: "Open Long", ClosedPnl: 0, Time: openT.UnixMilli()},
		{Coin: "BTC", Dir: "Close Long", ClosedPnl: 50, Time: closeT.UnixMilli()},
	}
	trades := ExtractClosedTrades(fills, since)
	assert.Len(t, trades, 1)
	assert.InDelta(t, 3.0, trades[0].HoldHours, 0.01)
}

func TestROI_ClampsToRange(t *testing.T) {
	assert.Equal(t, 1000.0, ROI(1e9, 100))
	assert.Equal(t, -100.0, ROI(-1e9, 100))
}

func TestROI_UsesMinBaseOf100(t *testing.T) {
	roi := ROI(10, 50) // accountValue-pnl = 40, floored to 100
	assert.Equal(t, 10.0, roi)
}

func TestComputeWinLoss_Basic(t *testing.T) {
	trades := []ClosedTrade{
		{ClosedPnl: 100}, {ClosedPnl: 50}, {ClosedPnl: -30}, {ClosedPnl: -20},
	}
	stats := ComputeWinLoss(trades, 4)
	assert.Equal(t, 0.5, stats.WinRate)
	assert.InDelta(t, 3.0, stats.ProfitFactor, 0.01)
	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 1.0, stats.TradeFrequencyPerDay)
}

func TestComputeWinLoss_NoLossesGivesCappedProfitFactor(t *testing.T) {
	trades := []ClosedTrade{{ClosedPnl: 10}, {ClosedPnl: 20}}
	stats := ComputeWinLoss(trades, 1)
	assert.Equal(t, 10.0, stats.ProfitFactor)
}

func TestComputeWinLoss_Empty(t *testing.T) {
	stats := ComputeWinLoss(nil, 7)
	assert.Equal(t, 0, stats.TotalTrades)
	assert.Equal(t, 0.0, stats.WinRate)
}

func TestComputeDrawdown_TracksPeakAndCurrent(t *testing.T) {
	points := []EquityPoint{
		{Date: "2026-01-01", Value: 100},
		{Date: "2026-01-02", Value: 120},
		{Date: "2026-01-03", Value: 90},
	}
	ds := ComputeDrawdown(points)
	assert.Equal(t, 120.0, ds.PeakEquity)
	assert.InDelta(t, 25.0, ds.CurrentDrawdownPct, 0.01)
	assert.InDelta(t, 25.0, ds.MaxDrawdown7dPct, 0.01)
}

func TestComputeDrawdown_EmptyIsZeroValue(t *testing.T) {
	ds := ComputeDrawdown(nil)
	assert.Equal(t, DrawdownStats{}, ds)
}

func TestStrategyLabel(t *testing.T) {
	assert.Equal(t, "scalper", StrategyLabel(0.5, 6, 0.5))
	assert.Equal(t, "position", StrategyLabel(200, 0.1, 0.5))
	assert.Equal(t, "swing", StrategyLabel(48, 0.5, 0.5))
	assert.Equal(t, "momentum", StrategyLabel(5, 1, 0.6))
	assert.Equal(t, "mean_reversion", StrategyLabel(5, 1, 0.3))
}

func TestConsistencyScore_PenalizesThinSample(t *testing.T) {
	full := ConsistencyScore(0.7, 3.5, 5, 2.5, 20)
	thin := ConsistencyScore(0.7, 3.5, 5, 2.5, 2)
	assert.Equal(t, 100.0, full)
	assert.Less(t, thin, full)
}

func TestConsistencyScore_NeverNegative(t *testing.T) {
	score := ConsistencyScore(0, 0, 90, -5, 0)
	assert.GreaterOrEqual(t, score, 0.0)
}
