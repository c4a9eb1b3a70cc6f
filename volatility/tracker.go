// Package volatility computes and caches per-coin ATR and daily-range rank
// from candle data (§4.2), grounded on the teacher's market/data.go
// calculateATR/calculateVolumeProfile style (ATR here is a simple mean of
// the last N true ranges, not Wilder smoothing), generalized from stock
// bars to perp candles.
package volatility

import (
	"context"
	"math"
	"sort"
	"time"

	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/store"
)

const (
	atrBufferDays  = 5
	defaultStopPct = 0.03
)

// MajorAssets is the built-in major-asset list always tracked regardless
// of whether a quality trader currently holds a position in them.
var MajorAssets = []string{"BTC", "ETH", "SOL"}

type Tracker struct {
	client *exchange.Client
	st     *store.Store
}

func NewTracker(client *exchange.Client, st *store.Store) *Tracker {
	return &Tracker{client: client, st: st}
}

// RunCycle fetches candles for every coin of interest and recomputes
// CoinVolatility rows, including the cross-coin volatility_rank percentile.
func (t *Tracker) RunCycle(ctx context.Context, coins []string) {
	coins = unionCoins(coins, MajorAssets)
	days := 14 + atrBufferDays

	type result struct {
		coin             string
		atr14, atr7      float64
		dailyRangeAvgPct float64
		lastPrice        float64
		change24hPct     float64
		ok               bool
	}

	results := make([]result, 0, len(coins))
	for _, coin := range coins {
		start := time.Now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
		candles, err := t.client.CandleSnapshot(ctx, coin, "1d", start, nil)
		if err != nil || len(candles) < 2 {
			logger.Warnf("volatility: no candle data for %s: %v", coin, err)
			continue
		}

		trs := make([]float64, 0, len(candles)-1)
		rangePct := make([]float64, 0, len(candles))
		for i, c := range candles {
			high, low, closeP := float64(c.H), float64(c.L), float64(c.C)
			if i > 0 {
				prevClose := float64(candles[i-1].C)
				tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
				trs = append(trs, tr)
			}
			mid := (high + low) / 2
			if mid > 0 {
				rangePct = append(rangePct, (high-low)/mid*100)
			}
		}

		r := result{coin: coin, ok: true}
		r.atr14 = meanLastN(trs, 14)
		r.atr7 = meanLastN(trs, 7)
		r.dailyRangeAvgPct = meanLastN(rangePct, 7)
		r.lastPrice = float64(candles[len(candles)-1].C)
		if len(candles) >= 2 {
			prev := float64(candles[len(candles)-2].C)
			if prev > 0 {
				r.change24hPct = (r.lastPrice - prev) / prev * 100
			}
		}
		results = append(results, r)
	}

	dailyPcts := make([]float64, len(results))
	for i, r := range results {
		dailyPcts[i] = r.dailyRangeAvgPct
	}
	ranks := percentileRank(dailyPcts)
	now := time.Now()
	for i, r := range results {
		if !r.ok {
			continue
		}
		v := store.CoinVolatility{
			Coin:              r.coin,
			ATR14d:            r.atr14,
			ATR7d:             r.atr7,
			DailyRangeAvgPct:  r.dailyRangeAvgPct,
			VolatilityRank:    ranks[i],
			LastPrice:         r.lastPrice,
			PriceChange24hPct: r.change24hPct,
			UpdatedAt:         now,
		}
		if err := t.st.UpsertCoinVolatility(v); err != nil {
			logger.Errorf("volatility: persist %s: %v", r.coin, err)
		}
	}
}

// percentileRank returns, for each value, its percentile (0-100) among the
// full slice. Ties share the same rank (any valid total ordering is
// acceptable per §8's boundary-behaviour note).
func percentileRank(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n <= 1 {
		for i := range out {
			out[i] = 0
		}
		return out
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	for i, v := range values {
		idx := sort.SearchFloat64s(sorted, v)
		out[i] = float64(idx) / float64(n-1) * 100
	}
	return out
}

func meanLastN(xs []float64, n int) float64 {
	if len(xs) == 0 {
		return 0
	}
	if len(xs) < n {
		n = len(xs)
	}
	tail := xs[len(xs)-n:]
	sum := 0.0
	for _, x := range tail {
		sum += x
	}
	return sum / float64(len(tail))
}

func unionCoins(a, b []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range append(append([]string{}, a...), b...) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// AdjustedStop implements volatilityAdjustedStop(coin, direction, entryPx,
// atrMultiple): stop = entryPx ∓ atr14d*atrMultiple, clamped so that
// |stopPct| is within [1,10]%. Falls back to 3% if no volatility data
// exists for the coin.
func (t *Tracker) AdjustedStop(coin string, direction store.Direction, entryPx, atrMultiple float64) float64 {
	v, err := t.st.GetCoinVolatility(coin)
	if err != nil || v == nil || v.ATR14d <= 0 {
		return fallbackStop(entryPx, direction)
	}

	distance := v.ATR14d * atrMultiple
	pct := distance / entryPx * 100
	if pct < 1 {
		pct = 1
	}
	if pct > 10 {
		pct = 10
	}
	distance = entryPx * pct / 100

	if direction == store.Long {
		return entryPx - distance
	}
	return entryPx + distance
}

func fallbackStop(entryPx float64, direction store.Direction) float64 {
	distance := entryPx * defaultStopPct
	if direction == store.Long {
		return entryPx - distance
	}
	return entryPx + distance
}
