// Package fillstream subscribes to the exchange's userFills WebSocket
// channel for every tracked wallet, deduplicates, persists RealtimeFill
// rows, and fires the Signal Generator's exit hook on closing fills
// (§4.8), grounded on the other_examples whale-activity processor's
// worker-pool + checkpoint-dedup shape, adapted to a WS push source
// instead of a polled REST feed.
package fillstream

import (
	"context"
	"sync"
	"time"

	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/metrics"
	"traderwatch/store"
)

const dedupCapacity = 1000

// ExitHook is invoked when a fill closes a position.
type ExitHook func(address, coin string, direction store.Direction)

// Stream owns the bounded worker pool that processes fills off the WS
// reader goroutine (§5 — a slow consumer must not stall the reader), and
// the dedup ring keyed by (hash, oid).
type Stream struct {
	ws   *exchange.WSClient
	st   *store.Store
	hook ExitHook

	jobs chan job

	dedupMu  sync.Mutex
	seen     map[string]struct{}
	seenKeys []string
}

type job struct {
	user string
	fill exchange.WsFill
}

func NewStream(wsURL string, reconnectDelay time.Duration, st *store.Store, hook ExitHook, workers int) *Stream {
	s := &Stream{
		st:   st,
		hook: hook,
		jobs: make(chan job, 256),
		seen: make(map[string]struct{}),
	}
	s.ws = exchange.NewWSClient(wsURL, reconnectDelay, s.enqueue)
	s.ws.OnReconnect(s.resetDedup)
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *Stream) enqueue(user string, fill exchange.WsFill) {
	select {
	case s.jobs <- job{user: user, fill: fill}:
	default:
		logger.Warnf("fillstream: worker pool saturated, dropping fill for %s", logger.Wallet(user))
		metrics.FillsDroppedTotal.Inc()
	}
}

func (s *Stream) worker() {
	for j := range s.jobs {
		s.process(j.user, j.fill)
	}
}

func (s *Stream) Run(ctx context.Context) {
	go s.refreshLoop(ctx)
	s.ws.Run(ctx)
}

// refreshLoop resyncs subscription membership against the tracked set
// every 5 minutes (§4.8).
func (s *Stream) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	s.syncSubscriptions()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.syncSubscriptions()
		}
	}
}

func (s *Stream) syncSubscriptions() {
	tracked, err := s.st.ListTrackedAddresses()
	if err != nil {
		logger.Errorf("fillstream: list tracked failed: %v", err)
		return
	}
	wanted := make(map[string]bool, len(tracked))
	for _, a := range tracked {
		wanted[a] = true
	}
	current := s.ws.CurrentUsers()
	currentSet := make(map[string]bool, len(current))
	for _, u := range current {
		currentSet[u] = true
	}
	for _, a := range tracked {
		if !currentSet[a] {
			s.ws.Subscribe(a)
		}
	}
	for _, u := range current {
		if !wanted[u] {
			s.ws.Unsubscribe(u)
		}
	}
}

func (s *Stream) process(user string, fill exchange.WsFill) {
	key := fill.Hash + ":" + itoa(fill.Oid)
	if s.isDuplicate(key) {
		metrics.FillsDuplicateTotal.Inc()
		return
	}
	metrics.FillsProcessedTotal.Inc()

	tier := store.TierInactive
	if q, err := s.st.GetTraderQuality(user); err == nil && q != nil {
		tier = q.Tier
	}

	closedPnl := float64(fill.ClosedPnl)
	rf := store.RealtimeFill{
		TxHash: fill.Hash, OID: fill.Oid, Address: user, Coin: fill.Coin,
		Side: fill.Side, Price: float64(fill.Px), Size: float64(fill.Sz),
		ClosedPnl: closedPnl, Tier: tier, IsExit: closedPnl != 0,
		Time: time.UnixMilli(fill.Time),
	}
	if err := s.st.UpsertRealtimeFill(rf); err != nil {
		logger.Errorf("fillstream: persist failed for %s: %v", key, err)
		return
	}

	if closedPnl == 0 {
		return
	}
	// buy-to-close (side "B" with closedPnl != 0) closes a short; sell-to-
	// close ("A") closes a long (§4.8 step 4).
	direction := store.Long
	if fill.Side == "B" {
		direction = store.Short
	}
	if s.hook != nil {
		metrics.ExitHooksTotal.Inc()
		s.hook(user, fill.Coin, direction)
	}
}

// resetDedup clears the dedup set after a reconnect and counts the
// reconnect.
func (s *Stream) resetDedup() {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	s.seen = make(map[string]struct{})
	s.seenKeys = s.seenKeys[:0]
	logger.Infof("fillstream: dedup cache cleared after reconnect")
	metrics.WSReconnectsTotal.Inc()
}

// isDuplicate checks and records key in the bounded dedup set, evicting
// the oldest entry once capacity is reached (§4.8 step 1).
func (s *Stream) isDuplicate(key string) bool {
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	if len(s.seenKeys) >= dedupCapacity {
		oldest := s.seenKeys[0]
		s.seenKeys = s.seenKeys[1:]
		delete(s.seen, oldest)
	}
	s.seen[key] = struct{}{}
	s.seenKeys = append(s.seenKeys, key)
	return false
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
