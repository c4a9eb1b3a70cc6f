// Package scheduler is the orchestrator (§4.9, component I): it owns
// start/stop of every long-running task, runs the fixed-interval jobs,
// and performs graceful shutdown. Grounded on the teacher's
// trader.AutoTrader supervisor loop style (ticker-per-job, isRunning
// guards, switch-driven wiring), generalized from a single trading loop to
// the multi-job quality-trader pipeline.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"traderwatch/config"
	"traderwatch/exchange"
	"traderwatch/fillstream"
	"traderwatch/funding"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/position"
	"traderwatch/quality"
	"traderwatch/signal"
	"traderwatch/store"
	"traderwatch/volatility"
)

type Scheduler struct {
	cfg *config.Config
	st  *store.Store

	client    *exchange.Client
	volTrack  *volatility.Tracker
	fundTrack *funding.Tracker
	evaluator *quality.Evaluator
	posTrack  *position.Tracker
	sigGen    *signal.Generator
	sigTrack  *signal.Tracker
	fillS     *fillstream.Stream

	events chan store.PositionChange

	wg sync.WaitGroup
}

func New(cfg *config.Config, st *store.Store) *Scheduler {
	client := exchange.NewClient(cfg.ExchangeInfoURL)
	events := make(chan store.PositionChange, 256)

	volTrack := volatility.NewTracker(client, st)
	fundTrack := funding.NewTracker(client, st)
	evaluator := quality.NewEvaluator(client, st, cfg)
	posTrack := position.NewTracker(client, st, cfg, events)
	sigGen := signal.NewGenerator(st, volTrack, fundTrack, cfg)
	sigTrack := signal.NewTracker(client, st, cfg.MaxSignalHours)

	s := &Scheduler{
		cfg: cfg, st: st, client: client,
		volTrack: volTrack, fundTrack: fundTrack, evaluator: evaluator,
		posTrack: posTrack, sigGen: sigGen, sigTrack: sigTrack,
		events: events,
	}
	s.fillS = fillstream.NewStream(cfg.ExchangeWSURL, cfg.WSReconnectDelay, st, sigGen.ExitHook, 8)
	return s
}

// Run starts every job and blocks until ctx is cancelled, then performs
// graceful shutdown: stop tickers, cancel in-flight work, flush, return.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.posTrack.Warm(); err != nil {
		logger.Errorf("scheduler: position tracker warm failed: %v", err)
	}

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.sigGen.Run(ctx, s.events) }()

	s.wg.Add(1)
	go func() { defer s.wg.Done(); s.fillS.Run(ctx) }()

	s.startTicker(ctx, "position", s.cfg.PositionPollInterval, s.posTrack.RunCycle)
	s.startTicker(ctx, "signal_tracker", s.cfg.SignalTrackInterval, s.sigTrack.RunCycle)
	s.startTicker(ctx, "volatility", s.cfg.VolatilityInterval, s.runVolatility)
	s.startTicker(ctx, "funding", s.cfg.FundingInterval, s.runFunding)
	s.startTicker(ctx, "reanalyze_elite", time.Hour, s.reanalyzeTier(store.TierElite))
	s.startTicker(ctx, "reanalyze_good", 4*time.Hour, s.reanalyzeTier(store.TierGood))
	s.startTicker(ctx, "reanalyze_weak", 24*time.Hour, s.reanalyzeTier(store.TierWeak))
	s.startTicker(ctx, "weekly_reeval", 7*24*time.Hour, s.weeklyReEvaluate)
	s.startTicker(ctx, "daily_equity_snapshot", time.Hour, s.dailySnapshotCheck)

	<-ctx.Done()
	logger.Infof("scheduler: shutdown signal received, stopping jobs")
	s.wg.Wait()
	logger.Infof("scheduler: shutdown complete")
}

// startTicker runs fn on a fixed interval, guarded by an isRunning flag so
// a slow cycle never overlaps with the next tick (§5).
func (s *Scheduler) startTicker(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var running int32
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !atomic.CompareAndSwapInt32(&running, 0, 1) {
					logger.Warnf("scheduler: %s cycle still running, skipping tick", name)
					metrics.JobSkippedTotal.WithLabelValues(name).Inc()
					continue
				}
				func() {
					start := time.Now()
					defer atomic.StoreInt32(&running, 0)
					defer metrics.ObserveJobCycle(name, start)
					defer func() {
						if r := recover(); r != nil {
							logger.Errorf("scheduler: %s job panicked: %v", name, r)
							metrics.JobErrorsTotal.WithLabelValues(name).Inc()
						}
					}()
					fn(ctx)
				}()
			}
		}
	}()
}

func (s *Scheduler) runVolatility(ctx context.Context) {
	coins, err := s.trackedCoins()
	if err != nil {
		logger.Errorf("scheduler: tracked coins query failed: %v", err)
		return
	}
	s.volTrack.RunCycle(ctx, coins)
}

func (s *Scheduler) runFunding(ctx context.Context) {
	coins, err := s.trackedCoins()
	if err != nil {
		logger.Errorf("scheduler: tracked coins query failed: %v", err)
		return
	}
	meta, assetCtxs, err := s.client.MetaAndAssetCtxs(ctx)
	if err != nil {
		logger.Warnf("scheduler: metaAndAssetCtxs unavailable: %v", err)
		return
	}
	var parsed struct {
		Universe []struct {
			Name string `json:"name"`
		} `json:"universe"`
	}
	if err := json.Unmarshal(meta, &parsed); err != nil {
		logger.Warnf("scheduler: meta universe unreadable: %v", err)
		return
	}
	coinIndex := make(map[string]int, len(parsed.Universe))
	for i, u := range parsed.Universe {
		if i < len(assetCtxs) {
			coinIndex[u.Name] = i
		}
	}
	s.fundTrack.RunCycle(ctx, coins, coinIndex)
}

func (s *Scheduler) trackedCoins() ([]string, error) {
	wallets, err := s.st.ListTrackedAddresses()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var coins []string
	for _, addr := range wallets {
		positions, err := s.st.PositionsForAddress(addr)
		if err != nil {
			continue
		}
		for _, p := range positions {
			if !seen[p.Coin] {
				seen[p.Coin] = true
				coins = append(coins, p.Coin)
			}
		}
	}
	return coins, nil
}

// reanalyzeTier returns a job that re-evaluates all addresses of one tier
// in batches of 10, then triggers the tier-sync sweep (§4.9).
func (s *Scheduler) reanalyzeTier(tier store.Tier) func(context.Context) {
	return func(ctx context.Context) {
		addrs, err := s.st.ListAddressesByTier(tier)
		if err != nil {
			logger.Errorf("scheduler: list addresses by tier %s failed: %v", tier, err)
			return
		}
		for i := 0; i < len(addrs); i += s.cfg.BatchSize {
			end := i + s.cfg.BatchSize
			if end > len(addrs) {
				end = len(addrs)
			}
			s.evaluator.BatchEvaluate(ctx, addrs[i:end])
			s.sigGen.TierSyncSweep(ctx)
		}
	}
}

func (s *Scheduler) weeklyReEvaluate(ctx context.Context) {
	addrs, err := s.st.ListTrackedAddresses()
	if err != nil {
		logger.Errorf("scheduler: weekly re-eval list failed: %v", err)
		return
	}
	liveDrawdown := make(map[string]float64)
	sustained := make(map[string]bool)
	for _, addr := range addrs {
		q, err := s.st.GetTraderQuality(addr)
		if err != nil || q == nil {
			continue
		}
		liveDrawdown[addr] = q.CurrentDrawdownPct
		sustained[addr] = q.CurrentDrawdownPct >= 50 && !q.UnrealizedDrawdownSince.IsZero() &&
			time.Since(q.UnrealizedDrawdownSince) >= 24*time.Hour
	}
	s.evaluator.WeeklyReEvaluate(ctx, addrs, liveDrawdown, sustained)
	s.sigGen.TierSyncSweep(ctx)
	if err := s.st.PruneEquitySnapshots(time.Now().AddDate(0, 0, -90)); err != nil {
		logger.Errorf("scheduler: equity snapshot pruning failed: %v", err)
	}
}

func (s *Scheduler) refreshTierGauges() {
	for _, tier := range []store.Tier{store.TierElite, store.TierGood, store.TierWeak, store.TierInactive} {
		addrs, err := s.st.ListAddressesByTier(tier)
		if err != nil {
			continue
		}
		metrics.TrackedTraders.WithLabelValues(string(tier)).Set(float64(len(addrs)))
	}
}

func (s *Scheduler) dailySnapshotCheck(ctx context.Context) {
	s.refreshTierGauges()

	today := time.Now().UTC().Format("2006-01-02")
	addrs, err := s.st.ListTrackedAddresses()
	if err != nil {
		logger.Errorf("scheduler: daily snapshot list failed: %v", err)
		return
	}
	for _, addr := range addrs {
		has, err := s.st.HasEquitySnapshot(addr, today)
		if err != nil || has {
			continue
		}
		chs, err := s.client.ClearinghouseState(ctx, addr)
		if err != nil {
			continue
		}
		if err := s.st.UpsertEquitySnapshot(store.EquitySnapshot{
			Address: addr, SnapshotDate: today, AccountValue: float64(chs.MarginSummary.AccountValue),
		}); err != nil {
			logger.Errorf("scheduler: daily snapshot persist failed for %s: %v", logger.Wallet(addr), err)
		}
	}
}
