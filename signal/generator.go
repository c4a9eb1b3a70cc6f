package signal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"traderwatch/config"
	"traderwatch/funding"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
	"traderwatch/volatility"
)

const (
	directionalAgreementMin = 0.65
	atrMultiple             = 1.5
)

// Generator is event-driven: it drains PositionChange events and applies
// the §4.6 consensus rules. Handlers are serialised per (coin,direction)
// via a per-key mutex (§5), so no cross-event races within one market.
type Generator struct {
	st  *store.Store
	vol *volatility.Tracker
	fnd *funding.Tracker
	cfg *config.Config

	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewGenerator(st *store.Store, vol *volatility.Tracker, fnd *funding.Tracker, cfg *config.Config) *Generator {
	return &Generator{st: st, vol: vol, fnd: fnd, cfg: cfg, keys: make(map[string]*sync.Mutex)}
}

func (g *Generator) keyLock(coin string, direction store.Direction) *sync.Mutex {
	key := coin + ":" + string(direction)
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.keys[key]
	if !ok {
		m = &sync.Mutex{}
		g.keys[key] = m
	}
	return m
}

// Run drains the events channel until ctx is cancelled, one event at a
// time, preserving per-wallet poll-cycle ordering (§5).
func (g *Generator) Run(ctx context.Context, events <-chan store.PositionChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-events:
			if !ok {
				return
			}
			g.HandleEvent(ctx, c)
		}
	}
}

func (g *Generator) HandleEvent(ctx context.Context, c store.PositionChange) {
	switch c.EventType {
	case store.EventOpen, store.EventFlip:
		g.handleOpenOrFlip(ctx, c)
	case store.EventIncrease:
		g.handleIncrease(c)
	case store.EventDecrease, store.EventClose:
		g.handleExit(c)
	}
}

func (g *Generator) handleOpenOrFlip(ctx context.Context, c store.PositionChange) {
	if c.NewDirection == nil {
		return
	}
	direction := *c.NewDirection
	coin := c.Coin

	q, err := g.st.GetTraderQuality(c.Address)
	if err != nil || q == nil || !q.IsTracked {
		return
	}
	pos, err := g.st.GetPosition(c.Address, coin)
	if err != nil || pos == nil {
		return
	}
	conviction := 0.0
	if q.AccountValue > 0 {
		conviction = pos.ValueUSD / q.AccountValue * 100
		if conviction > 100 {
			conviction = 100
		}
	}
	if conviction < g.cfg.LowConvictionPct {
		return
	}

	lock := g.keyLock(coin, direction)
	lock.Lock()
	defer lock.Unlock()

	if c.EventType == store.EventFlip {
		if opp, err := g.st.GetActiveSignal(coin, direction.Opposite()); err == nil && opp != nil {
			g.invalidate(opp, "flip_closed_opposite_position")
		}
	}

	if existing, err := g.st.GetActiveSignal(coin, direction); err == nil && existing == nil {
		if opp, err := g.st.GetActiveSignal(coin, direction.Opposite()); err == nil && opp != nil {
			reason := "replaced_by_long_signal"
			if direction == store.Short {
				reason = "replaced_by_short_signal"
			}
			g.invalidate(opp, reason)
		}
	}

	since := time.Now().Add(-g.cfg.FreshnessWindow)
	roster, err := g.st.PositionsOpenedSince(coin, direction, since)
	if err != nil {
		logger.Errorf("signal: roster query failed for %s/%s: %v", coin, direction, err)
		return
	}
	if len(roster) == 0 {
		return
	}

	eliteCount, goodCount := 0, 0
	var valueWeightedPriceSum, valueSum, convictionSum, winRateSum, pnl7dSum float64
	traders := make([]store.TraderSnapshot, 0, len(roster))
	for _, r := range roster {
		switch r.Tier {
		case store.TierElite:
			eliteCount++
		case store.TierGood:
			goodCount++
		}
		valueWeightedPriceSum += r.Position.EntryPrice * r.Position.ValueUSD
		valueSum += r.Position.ValueUSD
		convictionSum += r.ConvictionPct()
		winRateSum += r.WinRate
		pnl7dSum += r.Pnl7d
		traders = append(traders, store.TraderSnapshot{
			Address: r.Position.Address, TierAtCreate: r.Tier, Pnl7d: r.Pnl7d, WinRate: r.WinRate,
			PositionValue: r.Position.ValueUSD, EntryPrice: r.Position.EntryPrice, OpenedAt: r.Position.OpenedAt,
		})
	}
	if !Eligible(eliteCount, goodCount) {
		return
	}

	opposingCount, err := g.st.CountOpposingPositions(coin, direction, since)
	if err != nil {
		opposingCount = 0
	}
	agreement := DirectionalAgreement(len(roster), opposingCount)
	if agreement < directionalAgreementMin {
		return
	}

	entryPrice := 0.0
	if valueSum > 0 {
		entryPrice = valueWeightedPriceSum / valueSum
	}
	avgConviction := convictionSum / float64(len(roster))

	stopLoss := g.vol.AdjustedStop(coin, direction, entryPrice, atrMultiple)
	tp1, tp2, tp3 := TakeProfits(entryPrice, stopLoss, direction)
	fundingCtx := g.fnd.Classify(coin, direction)

	strength := Strength(eliteCount, goodCount)
	freshOpen := c.EventType == store.EventOpen && eliteCount == 1 && goodCount == 0
	tier := ClassifyTier(eliteCount, goodCount, freshOpen)
	confidence := Confidence(agreement, avgConviction, eliteCount, strength, g.cfg.HighConvictionPct, g.cfg.MediumConvictionPct)

	now := time.Now()
	existing, _ := g.st.GetActiveSignal(coin, direction)
	sig := store.Signal{
		ID: uuid.NewString(), Coin: coin, Direction: direction,
		EliteCount: eliteCount, GoodCount: goodCount, TotalTraders: len(roster), Traders: traders,
		EntryPrice: entryPrice, CurrentPrice: entryPrice, StopLoss: stopLoss,
		TakeProfit1: tp1, TakeProfit2: tp2, TakeProfit3: tp3,
		FundingContext: string(fundingCtx), AvgConvictionPct: avgConviction,
		Confidence: confidence, Strength: strength, SignalTier: tier,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	if existing != nil {
		sig.ID = existing.ID
		sig.CreatedAt = existing.CreatedAt
	}
	if err := g.st.UpsertSignal(sig); err != nil {
		logger.Errorf("signal: upsert failed for %s/%s: %v", coin, direction, err)
		return
	}
	if existing == nil {
		metrics.SignalsGeneratedTotal.WithLabelValues(string(tier)).Inc()
	}
}

func (g *Generator) handleIncrease(c store.PositionChange) {
	if c.NewDirection == nil {
		return
	}
	direction := *c.NewDirection
	lock := g.keyLock(c.Coin, direction)
	lock.Lock()
	defer lock.Unlock()

	sig, err := g.st.GetActiveSignal(c.Coin, direction)
	if err != nil || sig == nil {
		return
	}
	pos, err := g.st.GetPosition(c.Address, c.Coin)
	if err != nil || pos == nil {
		return
	}
	q, err := g.st.GetTraderQuality(c.Address)
	if err != nil || q == nil {
		return
	}

	found := false
	for i := range sig.Traders {
		if sig.Traders[i].Address == c.Address {
			sig.Traders[i].PositionValue = pos.ValueUSD
			found = true
			break
		}
	}
	if !found {
		return
	}

	var convictionSum float64
	activeCount := 0
	for _, t := range sig.Traders {
		if t.Exited {
			continue
		}
		activeCount++
		if q.AccountValue > 0 && t.Address == c.Address {
			convictionSum += pos.ValueUSD / q.AccountValue * 100
		} else {
			convictionSum += sig.AvgConvictionPct
		}
	}
	if activeCount > 0 {
		sig.AvgConvictionPct = convictionSum / float64(activeCount)
	}
	sig.UpdatedAt = time.Now()
	if err := g.st.UpsertSignal(*sig); err != nil {
		logger.Errorf("signal: increase update failed for %s/%s: %v", c.Coin, direction, err)
	}
}

func (g *Generator) handleExit(c store.PositionChange) {
	if c.PrevDirection == nil {
		return
	}
	direction := *c.PrevDirection
	lock := g.keyLock(c.Coin, direction)
	lock.Lock()
	defer lock.Unlock()

	sig, err := g.st.GetActiveSignal(c.Coin, direction)
	if err != nil || sig == nil {
		return
	}

	activeCount := 0
	for i := range sig.Traders {
		if sig.Traders[i].Address == c.Address {
			sig.Traders[i].Exited = true
		}
		if !sig.Traders[i].Exited {
			activeCount++
		}
	}

	if activeCount == 0 {
		g.invalidate(sig, "all_traders_exited")
		return
	}

	eliteCount, goodCount := 0, 0
	for _, t := range sig.Traders {
		if t.Exited {
			continue
		}
		switch t.TierAtCreate {
		case store.TierElite:
			eliteCount++
		case store.TierGood:
			goodCount++
		}
	}
	if !Eligible(eliteCount, goodCount) {
		g.invalidate(sig, "below_minimum_traders")
		return
	}

	sig.EliteCount, sig.GoodCount, sig.TotalTraders = eliteCount, goodCount, activeCount
	sig.UpdatedAt = time.Now()
	if err := g.st.UpsertSignal(*sig); err != nil {
		logger.Errorf("signal: exit update failed for %s/%s: %v", c.Coin, direction, err)
	}
}

func (g *Generator) invalidate(sig *store.Signal, reason string) {
	now := time.Now()
	sig.IsActive = false
	sig.Invalidated = true
	sig.InvalidationReason = reason
	sig.ClosedAt = &now
	outcome := store.OutcomeClosed
	sig.Outcome = &outcome
	if sig.EntryPrice != 0 {
		pnl := (sig.CurrentPrice - sig.EntryPrice) / sig.EntryPrice * 100
		if sig.Direction == store.Short {
			pnl = -pnl
		}
		sig.FinalPnlPct = &pnl
	}
	sig.DurationHours = now.Sub(sig.CreatedAt).Hours()
	sig.UpdatedAt = now
	if err := g.st.UpsertSignal(*sig); err != nil {
		logger.Errorf("signal: invalidate persist failed for %s: %v", sig.ID, err)
	}
}

// TierSyncSweep drops contributors whose tier has fallen to weak and
// invalidates signals that no longer meet eligibility (§4.6, triggered
// after quality re-analysis).
func (g *Generator) TierSyncSweep(ctx context.Context) {
	signals, err := g.st.ListActiveSignals()
	if err != nil {
		logger.Errorf("signal: tier-sync list failed: %v", err)
		return
	}
	for _, sig := range signals {
		if ctx.Err() != nil {
			return
		}
		lock := g.keyLock(sig.Coin, sig.Direction)
		lock.Lock()
		g.tierSyncOne(&sig)
		lock.Unlock()
	}
}

func (g *Generator) tierSyncOne(sig *store.Signal) {
	changed := false
	eliteCount, goodCount, active := 0, 0, 0
	for i := range sig.Traders {
		if sig.Traders[i].Exited {
			continue
		}
		q, err := g.st.GetTraderQuality(sig.Traders[i].Address)
		if err == nil && q != nil && q.Tier == store.TierWeak {
			sig.Traders[i].Exited = true
			changed = true
			continue
		}
		active++
		switch sig.Traders[i].TierAtCreate {
		case store.TierElite:
			eliteCount++
		case store.TierGood:
			goodCount++
		}
	}
	if !changed {
		return
	}
	if !Eligible(eliteCount, goodCount) {
		g.invalidate(sig, "traders_no_longer_qualify")
		return
	}
	sig.EliteCount, sig.GoodCount, sig.TotalTraders = eliteCount, goodCount, active
	sig.UpdatedAt = time.Now()
	if err := g.st.UpsertSignal(*sig); err != nil {
		logger.Errorf("signal: tier-sync persist failed for %s: %v", sig.ID, err)
	}
}

// ExitHook is called by the Fill Stream when a realtime fill closes a
// position (closedPnl != 0); it drives the same exit path as a
// PositionChange close event, without mutating Signal rows directly from
// the fill stream itself (§3 ownership — the generator remains the sole
// mutator).
func (g *Generator) ExitHook(address, coin string, direction store.Direction) {
	g.handleExit(store.PositionChange{
		Address: address, Coin: coin, EventType: store.EventClose, PrevDirection: &direction,
	})
}
