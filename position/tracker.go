// Package position implements the position tracker (§4.5): one polling
// cycle per tracked wallet, conviction/pending-order derivation, opened_at
// back-fill, and open/increase/decrease/close/flip change detection.
package position

import (
	"context"
	"time"

	"github.com/google/uuid"

	"traderwatch/config"
	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
)

// Tracker owns the in-memory previous-position cache and the seen-wallets
// set (§9 — global mutable singletons modeled as single-owner state).
type Tracker struct {
	client *exchange.Client
	st     *store.Store
	cfg    *config.Config

	prevPositions map[string]map[string]store.Position // address -> coin -> position
	seenWallets   map[string]bool

	events chan store.PositionChange
}

func NewTracker(client *exchange.Client, st *store.Store, cfg *config.Config, events chan store.PositionChange) *Tracker {
	return &Tracker{
		client:        client,
		st:            st,
		cfg:           cfg,
		prevPositions: make(map[string]map[string]store.Position),
		seenWallets:   make(map[string]bool),
		events:        events,
	}
}

// Warm populates seenWallets from the Positions table on startup, so an
// already-known wallet restarting the process is not treated as new.
func (t *Tracker) Warm() error {
	wallets, err := t.st.ListWallets()
	if err != nil {
		return err
	}
	for _, w := range wallets {
		positions, err := t.st.PositionsForAddress(w.Address)
		if err != nil {
			continue
		}
		if len(positions) > 0 {
			t.seenWallets[w.Address] = true
			m := make(map[string]store.Position)
			for _, p := range positions {
				m[p.Coin] = p
			}
			t.prevPositions[w.Address] = m
		}
	}
	return nil
}

// RunCycle executes one full poll cycle over every tracked wallet.
func (t *Tracker) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.PositionPollDuration.Observe(time.Since(start).Seconds()) }()

	addresses, err := t.st.ListTrackedAddresses()
	if err != nil {
		logger.Errorf("position: list tracked addresses failed: %v", err)
		return
	}

	// allMids is fetched once per cycle and only its coin count is logged;
	// the position tracker prices positions from clearinghouseState's own
	// marks.
	if mids, err := t.client.AllMids(ctx); err != nil {
		logger.Warnf("position: allMids unavailable: %v", err)
	} else {
		logger.Debugf("position: allMids returned %d coins", len(mids))
	}

	coinCounts := make(map[string]int)
	for i, addr := range addresses {
		if ctx.Err() != nil {
			return
		}
		t.pollWallet(ctx, addr, coinCounts)
		if (i+1)%t.cfg.BatchSize == 0 {
			time.Sleep(t.cfg.DelayBetweenRequests)
		}
	}
	for coin, n := range coinCounts {
		metrics.OpenPositionsGauge.WithLabelValues(coin).Set(float64(n))
	}
}

func (t *Tracker) pollWallet(ctx context.Context, addr string, coinCounts map[string]int) {
	newlySeen := !t.seenWallets[addr]

	chs, err := t.client.ClearinghouseState(ctx, addr)
	if err != nil {
		logger.Warnf("position: clearinghouseState unavailable for %s: %v", logger.Wallet(addr), err)
		return // skip silently on failure; do not delete existing rows
	}
	orders, err := t.client.OpenOrders(ctx, addr)
	if err != nil {
		logger.Warnf("position: openOrders unavailable for %s: %v", logger.Wallet(addr), err)
		orders = nil
	}

	accountValue := float64(chs.MarginSummary.AccountValue)
	prev := t.prevPositions[addr]
	current := make(map[string]store.Position)

	for _, ap := range chs.AssetPositions {
		wp := ap.Position
		szi := float64(wp.Szi)
		if szi == 0 {
			continue
		}
		direction := store.Long
		if szi < 0 {
			direction = store.Short
		}
		size := abs(szi)
		valueUSD := abs(float64(wp.PositionValue))
		if valueUSD < t.cfg.MinPositionValueUSD {
			continue
		}

		p := store.Position{
			Address: addr, Coin: wp.Coin, Direction: direction, Size: size,
			EntryPrice: float64(wp.EntryPx), ValueUSD: valueUSD, Leverage: float64(wp.Leverage.Value),
			UnrealizedPnl: float64(wp.UnrealizedPnl), MarginUsed: float64(wp.MarginUsed),
		}
		if wp.LiquidationPx != nil {
			v := float64(*wp.LiquidationPx)
			p.LiquidationPx = &v
		}
		if accountValue > 0 {
			p.ValueUSD = valueUSD // conviction derived from this at signal time; stored raw here
		}

		p.HasPendingEntry, p.HasStopOrder, p.HasTPOrder = orderFlags(orders, wp.Coin, direction)

		if prevPos, ok := prev[wp.Coin]; ok {
			p.PeakUnrealizedPnl = maxF(prevPos.PeakUnrealizedPnl, p.UnrealizedPnl)
			p.TroughUnrealizedPnl = minF(prevPos.TroughUnrealizedPnl, p.UnrealizedPnl)
		} else {
			p.PeakUnrealizedPnl = p.UnrealizedPnl
			p.TroughUnrealizedPnl = p.UnrealizedPnl
		}

		p.OpenedAt = t.deriveOpenedAt(ctx, addr, wp.Coin, direction, prev, newlySeen)

		current[wp.Coin] = p
		coinCounts[wp.Coin]++
	}

	changes := t.diff(addr, prev, current, newlySeen)

	positions := make([]store.Position, 0, len(current))
	for _, p := range current {
		positions = append(positions, p)
	}
	if err := t.st.ReplacePositionsForAddress(addr, positions); err != nil {
		logger.Errorf("position: persist failed for %s: %v", logger.Wallet(addr), err)
		return // do not publish events if persistence failed
	}

	for _, c := range changes {
		if err := t.st.InsertPositionChange(c); err != nil {
			logger.Errorf("position: change-log write failed for %s: %v", logger.Wallet(addr), err)
		}
		metrics.PositionEventsTotal.WithLabelValues(string(c.EventType)).Inc()
		select {
		case t.events <- c:
		case <-ctx.Done():
			return
		}
	}

	t.prevPositions[addr] = current
	t.seenWallets[addr] = true
}

// deriveOpenedAt implements §4.5 step 5.
func (t *Tracker) deriveOpenedAt(ctx context.Context, addr, coin string, direction store.Direction, prev map[string]store.Position, newlySeen bool) time.Time {
	if prevPos, ok := prev[coin]; ok && prevPos.Direction == direction {
		return prevPos.OpenedAt
	}

	dirStr := "long"
	if direction == store.Short {
		dirStr = "short"
	}

	if newlySeen {
		openTime, ok, err := t.client.FindPositionOpenTime(ctx, addr, coin, dirStr, 90)
		if err != nil || !ok {
			return time.Now().Add(-48 * time.Hour)
		}
		return openTime
	}

	openTime, ok, err := t.client.FindPositionOpenTime(ctx, addr, coin, dirStr, 90)
	if err != nil || !ok {
		return time.Now()
	}
	if time.Since(openTime) < time.Hour {
		return time.Now()
	}
	return openTime
}

// diff implements §4.5 change detection. No events are emitted when
// newlySeen (P4): the cache is populated but nothing published.
func (t *Tracker) diff(addr string, prev, current map[string]store.Position, newlySeen bool) []store.PositionChange {
	var changes []store.PositionChange
	if newlySeen {
		return nil
	}
	now := time.Now()

	for coin, cur := range current {
		prevPos, existed := prev[coin]
		if !existed {
			changes = append(changes, store.PositionChange{
				ID: uuid.NewString(), Address: addr, Coin: coin, EventType: store.EventOpen,
				NewDirection: dirPtr(cur.Direction), NewSize: cur.Size, SizeChange: cur.Size,
				PriceAtEvent: cur.EntryPrice, DetectedAt: now,
			})
			continue
		}
		if prevPos.Direction != cur.Direction {
			changes = append(changes, store.PositionChange{
				ID: uuid.NewString(), Address: addr, Coin: coin, EventType: store.EventFlip,
				PrevDirection: dirPtr(prevPos.Direction), NewDirection: dirPtr(cur.Direction),
				PrevSize: prevPos.Size, NewSize: cur.Size, SizeChange: cur.Size - prevPos.Size,
				PriceAtEvent: cur.EntryPrice, DetectedAt: now,
			})
			continue
		}
		if cur.Size > 1.05*prevPos.Size {
			changes = append(changes, store.PositionChange{
				ID: uuid.NewString(), Address: addr, Coin: coin, EventType: store.EventIncrease,
				PrevDirection: dirPtr(prevPos.Direction), NewDirection: dirPtr(cur.Direction),
				PrevSize: prevPos.Size, NewSize: cur.Size, SizeChange: cur.Size - prevPos.Size,
				PriceAtEvent: cur.EntryPrice, DetectedAt: now,
			})
		} else if cur.Size < 0.95*prevPos.Size {
			changes = append(changes, store.PositionChange{
				ID: uuid.NewString(), Address: addr, Coin: coin, EventType: store.EventDecrease,
				PrevDirection: dirPtr(prevPos.Direction), NewDirection: dirPtr(cur.Direction),
				PrevSize: prevPos.Size, NewSize: cur.Size, SizeChange: cur.Size - prevPos.Size,
				PriceAtEvent: cur.EntryPrice, DetectedAt: now,
			})
		}
	}
	for coin, prevPos := range prev {
		if _, stillOpen := current[coin]; !stillOpen {
			changes = append(changes, store.PositionChange{
				ID: uuid.NewString(), Address: addr, Coin: coin, EventType: store.EventClose,
				PrevDirection: dirPtr(prevPos.Direction), PrevSize: prevPos.Size,
				SizeChange: -prevPos.Size, PriceAtEvent: prevPos.EntryPrice, DetectedAt: now,
			})
		}
	}
	return changes
}

func orderFlags(orders []exchange.OpenOrder, coin string, direction store.Direction) (pendingEntry, stop, tp bool) {
	for _, o := range orders {
		if o.Coin != coin {
			continue
		}
		closingSide := (direction == store.Long && o.Side == "A") || (direction == store.Short && o.Side == "B")
		switch {
		case o.ReduceOnly && o.IsTrigger && closingSide && isStopTrigger(o):
			stop = true
		case o.ReduceOnly && o.IsTrigger && closingSide:
			tp = true
		case !o.ReduceOnly:
			pendingEntry = true
		}
	}
	return
}

func isStopTrigger(o exchange.OpenOrder) bool {
	return o.TriggerPx != nil && o.OrderType != "" && contains(o.OrderType, "Stop")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func dirPtr(d store.Direction) *store.Direction { return &d }

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
