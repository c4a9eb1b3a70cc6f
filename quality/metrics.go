// Package quality implements the trader-quality evaluator (§4.4): pnl/roi
// computation, win-rate/profit-factor/drawdown/Sharpe statistics, the
// consistency score, strategy classification, and tier decisions.
package quality

import (
	"math"
	"sort"
	"time"

	"traderwatch/exchange"
)

// ClosedTrade is a fill with non-zero realised pnl, paired for hold-time
// statistics where possible.
type ClosedTrade struct {
	Coin      string
	ClosedPnl float64
	Time      time.Time
	HoldHours float64 // 0 if unpaired
}

// ExtractClosedTrades filters fills to those with non-zero closedPnl within
// the window and derives paired hold times by coin where an opening fill
// can be identified immediately before a closing fill (§9 open question:
// the "infer entry as 1h before exit" heuristic is NOT used here — only
// explicit fill pairs contribute hold-time).
func ExtractClosedTrades(fills []exchange.Fill, since time.Time) []ClosedTrade {
	var out []ClosedTrade
	lastOpenByCoin := make(map[string]int64)
	for _, f := range fills {
		t := time.UnixMilli(f.Time)
		if t.Before(since) {
			continue
		}
		if float64(f.ClosedPnl) == 0 {
			if isOpenDir(f.Dir) {
				lastOpenByCoin[f.Coin] = f.Time
			}
			continue
		}
		ct := ClosedTrade{Coin: f.Coin, ClosedPnl: float64(f.ClosedPnl), Time: t}
		if openTime, ok := lastOpenByCoin[f.Coin]; ok && f.Time > openTime {
			hold := float64(f.Time-openTime) / 1000 / 3600
			if hold > 0 {
				ct.HoldHours = math.Min(hold, 720)
			}
		}
		out = append(out, ct)
	}
	return out
}

func isOpenDir(dir string) bool {
	return dir == "Open Long" || dir == "Open Short"
}

func SumPnl(trades []ClosedTrade) float64 {
	sum := 0.0
	for _, t := range trades {
		sum += t.ClosedPnl
	}
	return sum
}

// ROI computes pnl/max(100, accountValue-pnl)*100 clamped to [-100,1000].
func ROI(pnl, accountValue float64) float64 {
	base := accountValue - pnl
	if base < 100 {
		base = 100
	}
	roi := pnl / base * 100
	return clamp(roi, -100, 1000)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WinLossStats aggregates §4.4 step 5.
type WinLossStats struct {
	WinRate              float64
	ProfitFactor         float64
	AvgWinnerPct         float64
	AvgLoserPct          float64
	MaxWinStreak         int
	MaxLossStreak        int
	AvgHoldTimeHours     float64
	TradeFrequencyPerDay float64
	TotalTrades          int
}

func ComputeWinLoss(trades []ClosedTrade, windowDays float64) WinLossStats {
	var stats WinLossStats
	stats.TotalTrades = len(trades)
	if len(trades) == 0 {
		return stats
	}

	var grossWins, grossLosses float64
	var wins, losses int
	var winSum, lossSum float64
	var curWinStreak, curLossStreak int
	var holdSum float64
	var holdCount int

	for _, t := range trades {
		if t.ClosedPnl > 0 {
			wins++
			grossWins += t.ClosedPnl
			winSum += t.ClosedPnl
			curWinStreak++
			curLossStreak = 0
		} else if t.ClosedPnl < 0 {
			losses++
			grossLosses += -t.ClosedPnl
			lossSum += t.ClosedPnl
			curLossStreak++
			curWinStreak = 0
		}
		if curWinStreak > stats.MaxWinStreak {
			stats.MaxWinStreak = curWinStreak
		}
		if curLossStreak > stats.MaxLossStreak {
			stats.MaxLossStreak = curLossStreak
		}
		if t.HoldHours > 0 {
			holdSum += t.HoldHours
			holdCount++
		}
	}

	total := wins + losses
	if total > 0 {
		stats.WinRate = float64(wins) / float64(total)
	}
	if grossLosses == 0 {
		if grossWins > 0 {
			stats.ProfitFactor = 10
		}
	} else {
		stats.ProfitFactor = math.Min(grossWins/grossLosses, 100)
	}
	if wins > 0 {
		stats.AvgWinnerPct = winSum / float64(wins)
	}
	if losses > 0 {
		stats.AvgLoserPct = lossSum / float64(losses)
	}
	if holdCount > 0 {
		stats.AvgHoldTimeHours = holdSum / float64(holdCount)
	}
	if windowDays > 0 {
		stats.TradeFrequencyPerDay = float64(len(trades)) / windowDays
	}
	return stats
}

// DrawdownStats summarises equity-curve drawdown and risk-adjusted return.
type DrawdownStats struct {
	MaxDrawdown7dPct   float64
	MaxDrawdown30dPct  float64
	CurrentDrawdownPct float64
	PeakEquity         float64
	Sharpe             float64
	Sortino            float64
}

// EquityPoint is one daily (date, account_value) sample, ascending by date.
type EquityPoint struct {
	Date  string
	Value float64
}

func ComputeDrawdown(points []EquityPoint) DrawdownStats {
	var ds DrawdownStats
	if len(points) == 0 {
		return ds
	}

	peak := points[0].Value
	maxDD := 0.0
	var maxDD7, maxDD30 float64
	n := len(points)
	for i, p := range points {
		if p.Value > peak {
			peak = p.Value
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - p.Value) / peak * 100
		}
		if dd > maxDD {
			maxDD = dd
		}
		if i >= n-7 && dd > maxDD7 {
			maxDD7 = dd
		}
		if i >= n-30 && dd > maxDD30 {
			maxDD30 = dd
		}
	}
	ds.PeakEquity = peak
	ds.MaxDrawdown7dPct = maxDD7
	ds.MaxDrawdown30dPct = maxDD30
	last := points[n-1].Value
	if peak > 0 {
		ds.CurrentDrawdownPct = (peak - last) / peak * 100
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if points[i-1].Value > 0 {
			returns = append(returns, (points[i].Value-points[i-1].Value)/points[i-1].Value)
		}
	}
	ds.Sharpe = clamp(sharpeRatio(returns), -10, 10)
	ds.Sortino = clamp(sortinoRatio(returns), -10, 10)
	return ds
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stdDev(returns, m)
	if sd == 0 {
		return 0
	}
	return m / sd * math.Sqrt(365)
}

func sortinoRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, d := range downside {
		sumSq += d * d
	}
	downDev := math.Sqrt(sumSq / float64(len(downside)))
	if downDev == 0 {
		return 0
	}
	return m / downDev * math.Sqrt(365)
}

// StrategyLabel classifies by hold time and trade frequency (§4.4 step 7).
func StrategyLabel(avgHoldHours, freqPerDay, winRate float64) string {
	switch {
	case avgHoldHours < 1 && freqPerDay >= 5:
		return "scalper"
	case avgHoldHours >= 168:
		return "position"
	case avgHoldHours >= 24 && avgHoldHours < 168:
		return "swing"
	case winRate >= 0.5:
		return "momentum"
	default:
		return "mean_reversion"
	}
}

// ConsistencyScore sums banded contributions from win rate, profit factor,
// drawdown (inverted) and Sharpe, then penalizes thin sample sizes. Bands
// are this implementation's concrete resolution of §4.4 step 8, which
// names the inputs but not the bands (documented as an Open Question
// resolution in DESIGN.md).
func ConsistencyScore(winRate, profitFactor, maxDrawdown30dPct, sharpe float64, totalTrades int) float64 {
	score := 0.0

	switch {
	case winRate >= 0.65:
		score += 30
	case winRate >= 0.55:
		score += 22
	case winRate >= 0.45:
		score += 14
	case winRate >= 0.35:
		score += 6
	}

	switch {
	case profitFactor >= 3:
		score += 30
	case profitFactor >= 2:
		score += 22
	case profitFactor >= 1.5:
		score += 14
	case profitFactor >= 1:
		score += 6
	}

	switch {
	case maxDrawdown30dPct <= 10:
		score += 20
	case maxDrawdown30dPct <= 25:
		score += 14
	case maxDrawdown30dPct <= 40:
		score += 7
	}

	switch {
	case sharpe >= 2:
		score += 20
	case sharpe >= 1:
		score += 14
	case sharpe >= 0:
		score += 7
	}

	if totalTrades < 10 {
		score -= float64(10-totalTrades) * 3
	}

	return clamp(score, 0, 100)
}

// sortPointsByDate is a small helper tests can use to ensure ascending
// order before calling ComputeDrawdown.
func sortPointsByDate(points []EquityPoint) {
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
}
