package fillstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderwatch/exchange"
	"traderwatch/store"
)

func newTestStream(t *testing.T, hook ExitHook) (*Stream, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewStream("ws://unused.invalid", time.Second, st, hook, 2), st
}

func TestProcess_PersistsFillAndInvokesExitHookOnClose(t *testing.T) {
	var hookCalls int
	var gotDirection store.Direction
	hook := func(address, coin string, direction store.Direction) {
		hookCalls++
		gotDirection = direction
	}
	s, st := newTestStream(t, hook)

	fill := exchange.Fill{Coin: "BTC", Px: 50000, Sz: 1, Side: "A", Time: time.Now().UnixMilli(), ClosedPnl: 100, Hash: "0xhash1", Oid: 1}
	s.process("0xabc", fill)

	has, err := st.HasRealtimeFill("0xhash1")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, store.Long, gotDirection, "a sell-to-close (side A) with realized pnl closes a long")
}

func TestProcess_BuyToCloseReportsShortDirection(t *testing.T) {
	var gotDirection store.Direction
	hook := func(address, coin string, direction store.Direction) { gotDirection = direction }
	s, _ := newTestStream(t, hook)

	fill := exchange.Fill{Coin: "BTC", Side: "B", Time: time.Now().UnixMilli(), ClosedPnl: 50, Hash: "0xhash2", Oid: 2}
	s.process("0xabc", fill)

	assert.Equal(t, store.Short, gotDirection)
}

func TestProcess_ZeroClosedPnlDoesNotInvokeHook(t *testing.T) {
	var hookCalls int
	hook := func(address, coin string, direction store.Direction) { hookCalls++ }
	s, st := newTestStream(t, hook)

	fill := exchange.Fill{Coin: "BTC", Side: "A", Time: time.Now().UnixMilli(), ClosedPnl: 0, Hash: "0xhash3", Oid: 3}
	s.process("0xabc", fill)

	has, err := st.HasRealtimeFill("0xhash3")
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 0, hookCalls)
}

func TestProcess_DuplicateFillIsIgnored(t *testing.T) {
	var hookCalls int
	hook := func(address, coin string, direction store.Direction) { hookCalls++ }
	s, _ := newTestStream(t, hook)

	fill := exchange.Fill{Coin: "BTC", Side: "A", Time: time.Now().UnixMilli(), ClosedPnl: 100, Hash: "0xhash4", Oid: 4}
	s.process("0xabc", fill)
	s.process("0xabc", fill)

	assert.Equal(t, 1, hookCalls, "the same (hash,oid) must not fire the exit hook twice")
}

func TestIsDuplicate_EvictsOldestPastCapacity(t *testing.T) {
	s, _ := newTestStream(t, nil)
	for i := 0; i < dedupCapacity; i++ {
		assert.False(t, s.isDuplicate(itoa(int64(i))))
	}
	// Inserting one more key pushes the ring past capacity and evicts "0".
	assert.False(t, s.isDuplicate(itoa(dedupCapacity)))
	assert.False(t, s.isDuplicate(itoa(0)), "key 0 was evicted to make room, so it is accepted again as fresh")
}

func TestResetDedup_ClearsSeenSet(t *testing.T) {
	s, _ := newTestStream(t, nil)
	assert.False(t, s.isDuplicate("k1"))
	assert.True(t, s.isDuplicate("k1"))

	s.resetDedup()
	assert.False(t, s.isDuplicate("k1"), "dedup cache must be empty after a reconnect")
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "123", itoa(123))
	assert.Equal(t, "-45", itoa(-45))
}
