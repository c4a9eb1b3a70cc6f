package quality

import (
	"context"
	"time"

	"traderwatch/config"
	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
)

const minSnapshotsForEquityMethod = 2

type Evaluator struct {
	client *exchange.Client
	st     *store.Store
	cfg    *config.Config
}

func NewEvaluator(client *exchange.Client, st *store.Store, cfg *config.Config) *Evaluator {
	return &Evaluator{client: client, st: st, cfg: cfg}
}

// Evaluate runs the full §4.4 pipeline for one wallet: snapshot equity,
// compute windowed pnl/roi, win/loss stats, drawdown/risk stats,
// consistency score, strategy label, and the initial tier decision. It
// persists TraderQuality and appends a tier_changes row on any tier delta.
func (e *Evaluator) Evaluate(ctx context.Context, address string) error {
	start := time.Now()
	defer func() { metrics.QualityEvalDuration.WithLabelValues().Observe(time.Since(start).Seconds()) }()

	chs, err := e.client.ClearinghouseState(ctx, address)
	if err != nil {
		logger.Warnf("quality: clearinghouseState unavailable for %s: %v", logger.Wallet(address), err)
		metrics.QualityEvalErrors.Inc()
		return nil
	}
	accountValue := float64(chs.MarginSummary.AccountValue)

	today := time.Now().UTC().Format("2006-01-02")
	if err := e.st.UpsertEquitySnapshot(store.EquitySnapshot{Address: address, SnapshotDate: today, AccountValue: accountValue}); err != nil {
		logger.Errorf("quality: snapshot persist failed for %s: %v", logger.Wallet(address), err)
	}

	fills, err := e.client.UserFills(ctx, address)
	if err != nil {
		logger.Warnf("quality: userFills unavailable for %s: %v", logger.Wallet(address), err)
		fills = nil
	}

	type pnlWindow struct {
		days   int
		dst    *float64
		roi    *float64
		method *string
	}
	var q store.TraderQuality
	q.Address = address
	q.AccountValue = accountValue
	windows := []pnlWindow{
		{7, &q.Pnl7d, &q.Roi7dPct, &q.PnlCalcMethod7d},
		{30, &q.Pnl30d, &q.Roi30dPct, nil},
		{60, &q.Pnl60d, &q.Roi60dPct, nil},
		{90, &q.Pnl90d, &q.Roi90dPct, nil},
	}

	for _, w := range windows {
		pnl, method := e.computeWindowedPnl(address, accountValue, fills, w.days)
		*w.dst = pnl
		*w.roi = ROI(pnl, accountValue)
		if w.method != nil {
			*w.method = method
		}
	}

	trades30 := ExtractClosedTrades(fills, time.Now().Add(-30*24*time.Hour))
	wl := ComputeWinLoss(trades30, 30)
	q.WinRate = wl.WinRate
	q.ProfitFactor = wl.ProfitFactor
	q.TotalTrades = wl.TotalTrades
	q.AvgWinnerPct = wl.AvgWinnerPct
	q.AvgLoserPct = wl.AvgLoserPct
	q.MaxWinStreak = wl.MaxWinStreak
	q.MaxLossStreak = wl.MaxLossStreak
	q.AvgHoldTimeHours = wl.AvgHoldTimeHours
	q.TradeFrequencyPerDay = wl.TradeFrequencyPerDay

	points, err := e.equityPoints(address, 30)
	if err != nil {
		logger.Errorf("quality: equity history read failed for %s: %v", logger.Wallet(address), err)
	}
	ds := ComputeDrawdown(points)
	q.MaxDrawdown7dPct = ds.MaxDrawdown7dPct
	q.MaxDrawdown30dPct = ds.MaxDrawdown30dPct
	q.CurrentDrawdownPct = ds.CurrentDrawdownPct
	q.PeakEquity = ds.PeakEquity
	q.Sharpe = ds.Sharpe
	q.Sortino = ds.Sortino

	q.StrategyLabel = StrategyLabel(q.AvgHoldTimeHours, q.TradeFrequencyPerDay, q.WinRate)
	q.ConsistencyScore = ConsistencyScore(q.WinRate, q.ProfitFactor, q.MaxDrawdown30dPct, q.Sharpe, q.TotalTrades)
	q.AnalyzedAt = time.Now()

	prev, err := e.st.GetTraderQuality(address)
	if err != nil {
		logger.Errorf("quality: read previous tier failed for %s: %v", logger.Wallet(address), err)
	}

	snap := Snapshot{
		Roi7dPct: q.Roi7dPct, Pnl7d: q.Pnl7d, Pnl30d: q.Pnl30d,
		WinRate: q.WinRate, ProfitFactor: q.ProfitFactor, TotalTrades: q.TotalTrades,
		AccountValue: q.AccountValue, MaxDrawdown30dPct: q.MaxDrawdown30dPct, ConsistencyScore: q.ConsistencyScore,
	}
	newTier := DecideTier(snap, e.cfg.EliteTier, e.cfg.GoodTier)
	q.Tier = newTier
	q.IsTracked = newTier == store.TierElite || newTier == store.TierGood

	if prev != nil {
		q.TierChangeCount = prev.TierChangeCount
	}

	if err := e.st.UpsertTraderQuality(q); err != nil {
		return err
	}

	if prev != nil && prev.Tier != newTier {
		if err := e.st.RecordTierChange(store.TierChange{
			Address: address, FromTier: prev.Tier, ToTier: newTier,
			Reason: "initial_evaluation_threshold_change", ChangedAt: time.Now(),
		}); err != nil {
			logger.Errorf("quality: tier change history write failed for %s: %v", logger.Wallet(address), err)
		}
		metrics.TierChangesTotal.WithLabelValues(string(prev.Tier), string(newTier)).Inc()
	}
	return nil
}

// computeWindowedPnl applies §4.4 step 3: prefer equity-change when ≥2
// snapshots exist and one is at or before the window start (the latest such
// snapshot is the base), else realized_sum_filtered.
func (e *Evaluator) computeWindowedPnl(address string, currentEquity float64, fills []exchange.Fill, days int) (float64, string) {
	fromDate := time.Now().AddDate(0, 0, -days).UTC().Format("2006-01-02")
	snaps, err := e.st.EquitySnapshotsSince(address, "")
	if err == nil && len(snaps) >= minSnapshotsForEquityMethod {
		found, base := false, 0.0
		for _, snap := range snaps {
			if snap.SnapshotDate <= fromDate {
				found, base = true, snap.AccountValue
			}
		}
		if found {
			return currentEquity - base, "equity_change"
		}
	}
	trades := ExtractClosedTrades(fills, time.Now().AddDate(0, 0, -days))
	return SumPnl(trades), "realized_sum_filtered"
}

func (e *Evaluator) equityPoints(address string, days int) ([]EquityPoint, error) {
	fromDate := time.Now().AddDate(0, 0, -days).UTC().Format("2006-01-02")
	snaps, err := e.st.EquitySnapshotsSince(address, fromDate)
	if err != nil {
		return nil, err
	}
	out := make([]EquityPoint, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, EquityPoint{Date: s.SnapshotDate, Value: s.AccountValue})
	}
	sortPointsByDate(out)
	return out, nil
}

// BatchEvaluate re-analyses a slice of addresses sequentially, tolerating
// per-address failures (§7 — a persistence/upstream failure on one row
// does not abort the batch).
func (e *Evaluator) BatchEvaluate(ctx context.Context, addresses []string) {
	for _, addr := range addresses {
		if ctx.Err() != nil {
			return
		}
		if err := e.Evaluate(ctx, addr); err != nil {
			logger.Errorf("quality: evaluate failed for %s: %v", logger.Wallet(addr), err)
		}
	}
}

// WeeklyReEvaluate applies the looser demote-only rule set plus the
// sustained-drawdown checks from live positions.
func (e *Evaluator) WeeklyReEvaluate(ctx context.Context, addresses []string, liveDrawdownPct map[string]float64, sustained24h map[string]bool) {
	for _, addr := range addresses {
		if ctx.Err() != nil {
			return
		}
		prev, err := e.st.GetTraderQuality(addr)
		if err != nil || prev == nil {
			continue
		}
		snap := Snapshot{
			Roi7dPct: prev.Roi7dPct, Pnl7d: prev.Pnl7d, Pnl30d: prev.Pnl30d,
			WinRate: prev.WinRate, ProfitFactor: prev.ProfitFactor, TotalTrades: prev.TotalTrades,
			AccountValue: prev.AccountValue, MaxDrawdown30dPct: liveDrawdownPct[addr], ConsistencyScore: prev.ConsistencyScore,
		}
		newTier, reason := ReEvaluate(prev.Tier, snap, e.cfg.EliteTier, e.cfg.GoodTier, sustained24h[addr])
		if newTier == prev.Tier {
			continue
		}
		oldTier := prev.Tier
		prev.Tier = newTier
		prev.IsTracked = newTier == store.TierElite || newTier == store.TierGood
		if err := e.st.UpsertTraderQuality(*prev); err != nil {
			logger.Errorf("quality: re-eval persist failed for %s: %v", logger.Wallet(addr), err)
			continue
		}
		if err := e.st.RecordTierChange(store.TierChange{
			Address: addr, FromTier: oldTier, ToTier: newTier, Reason: reason, ChangedAt: time.Now(),
		}); err != nil {
			logger.Errorf("quality: tier change history write failed for %s: %v", logger.Wallet(addr), err)
		}
		metrics.TierChangesTotal.WithLabelValues(string(oldTier), string(newTier)).Inc()
	}
}
