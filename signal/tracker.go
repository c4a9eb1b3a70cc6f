package signal

import (
	"context"
	"time"

	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
)

// Tracker marks active signals to market every 30s (§4.7), fires stop/TP
// flags, detects expiry/invalidation closure, and rolls per-coin
// AssetPerformance aggregates. It writes only a Signal's mark-to-market
// and outcome fields; the Generator also sets the outcome fields when it
// invalidates a signal.
type Tracker struct {
	client         *exchange.Client
	st             *store.Store
	maxSignalHours int
}

func NewTracker(client *exchange.Client, st *store.Store, maxSignalHours int) *Tracker {
	return &Tracker{client: client, st: st, maxSignalHours: maxSignalHours}
}

func (t *Tracker) RunCycle(ctx context.Context) {
	signals, err := t.st.ListActiveSignals()
	if err != nil {
		logger.Errorf("signal tracker: list active failed: %v", err)
		return
	}
	metrics.SignalsActiveGauge.Set(float64(len(signals)))
	if len(signals) == 0 {
		return
	}

	mids, err := t.client.AllMids(ctx)
	if err != nil {
		logger.Warnf("signal tracker: allMids unavailable: %v", err)
		return
	}

	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		cur, ok := mids[sig.Coin]
		if !ok {
			continue
		}
		t.evaluateSignal(&sig, float64(cur))
	}
}

func (t *Tracker) evaluateSignal(sig *store.Signal, cur float64) {
	if sig.EntryPrice == 0 {
		return
	}

	pnlPct := (cur - sig.EntryPrice) / sig.EntryPrice * 100
	if sig.Direction == store.Short {
		pnlPct = -pnlPct
	}

	sig.CurrentPrice = cur
	if sig.MaxPnlPct == 0 && sig.MinPnlPct == 0 && sig.PeakPrice == 0 {
		sig.MaxPnlPct, sig.MinPnlPct = pnlPct, pnlPct
		sig.PeakPrice, sig.TroughPrice = cur, cur
	}
	if pnlPct > sig.MaxPnlPct {
		sig.MaxPnlPct = pnlPct
		sig.PeakPrice = cur
	}
	if pnlPct < sig.MinPnlPct {
		sig.MinPnlPct = pnlPct
		sig.TroughPrice = cur
	}

	stopHit := (sig.Direction == store.Long && cur <= sig.StopLoss) || (sig.Direction == store.Short && cur >= sig.StopLoss)
	tp1Hit := (sig.Direction == store.Long && cur >= sig.TakeProfit1) || (sig.Direction == store.Short && cur <= sig.TakeProfit1)
	tp2Hit := (sig.Direction == store.Long && cur >= sig.TakeProfit2) || (sig.Direction == store.Short && cur <= sig.TakeProfit2)
	tp3Hit := (sig.Direction == store.Long && cur >= sig.TakeProfit3) || (sig.Direction == store.Short && cur <= sig.TakeProfit3)

	if tp1Hit {
		sig.HitTP1 = true
	}
	if tp2Hit {
		sig.HitTP2 = true
	}

	age := time.Since(sig.CreatedAt)
	sig.UpdatedAt = time.Now()

	switch {
	case stopHit:
		sig.HitStop = true
		t.close(sig, store.OutcomeStopped, pnlPct)
	case tp3Hit:
		sig.HitTP3 = true
		t.close(sig, store.OutcomeTP3, pnlPct)
	case sig.Invalidated:
		outcome := store.OutcomeClosed
		t.closeWithOutcome(sig, &outcome, pnlPct)
	case age >= time.Duration(t.maxSignalHours)*time.Hour:
		t.close(sig, store.OutcomeExpired, pnlPct)
	default:
		if err := t.st.UpsertSignal(*sig); err != nil {
			logger.Errorf("signal tracker: mark-to-market persist failed for %s: %v", sig.ID, err)
		}
	}
}

func (t *Tracker) close(sig *store.Signal, outcome store.SignalOutcome, pnlPct float64) {
	t.closeWithOutcome(sig, &outcome, pnlPct)
}

func (t *Tracker) closeWithOutcome(sig *store.Signal, outcome *store.SignalOutcome, pnlPct float64) {
	now := time.Now()
	sig.IsActive = false
	sig.Outcome = outcome
	sig.FinalPnlPct = &pnlPct
	sig.ClosedAt = &now
	sig.DurationHours = now.Sub(sig.CreatedAt).Hours()
	sig.UpdatedAt = now

	if err := t.st.UpsertSignal(*sig); err != nil {
		logger.Errorf("signal tracker: close persist failed for %s: %v", sig.ID, err)
		return
	}
	if outcome != nil {
		metrics.SignalOutcomesTotal.WithLabelValues(string(*outcome)).Inc()
	}
	metrics.SignalDurationHours.Observe(sig.DurationHours)
	metrics.SignalFinalPnlPct.Observe(pnlPct)
	t.rollAssetPerformance(sig)
}

// rollAssetPerformance maintains Welford-style running averages for
// avg_pnl_pct/avg_duration_hours and recomputes win_rate.
func (t *Tracker) rollAssetPerformance(sig *store.Signal) {
	perf, err := t.st.GetAssetPerformance(sig.Coin)
	if err != nil {
		logger.Errorf("signal tracker: asset performance read failed for %s: %v", sig.Coin, err)
		return
	}
	n := float64(perf.TotalSignals)
	pnl := 0.0
	if sig.FinalPnlPct != nil {
		pnl = *sig.FinalPnlPct
	}

	perf.TotalSignals++
	if pnl > 0 {
		perf.WinningSignals++
	}
	perf.WinRate = float64(perf.WinningSignals) / float64(perf.TotalSignals)

	perf.AvgPnlPct = perf.AvgPnlPct + (pnl-perf.AvgPnlPct)/(n+1)
	perf.AvgDurationHours = perf.AvgDurationHours + (sig.DurationHours-perf.AvgDurationHours)/(n+1)
	perf.TotalPnlPct += pnl
	if perf.TotalSignals == 1 || pnl > perf.BestSignalPnlPct {
		perf.BestSignalPnlPct = pnl
	}
	if perf.TotalSignals == 1 || pnl < perf.WorstSignalPnlPct {
		perf.WorstSignalPnlPct = pnl
	}

	if err := t.st.UpsertAssetPerformance(*perf); err != nil {
		logger.Errorf("signal tracker: asset performance persist failed for %s: %v", sig.Coin, err)
	}
}
