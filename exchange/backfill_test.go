package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillsServer(t *testing.T, fills []Fill) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(fills)
		w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestFindPositionOpenTime_FreshOpenFromFlat(t *testing.T) {
	now := time.Now()
	c := fillsServer(t, []Fill{
		{Coin: "BTC", Side: "B", Sz: 1, Time: now.Add(-2 * time.Hour).UnixMilli()},
	})

	opened, ok, err := c.FindPositionOpenTime(context.Background(), "0xabc", "BTC", "long", 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(-2*time.Hour), opened, time.Second)
}

func TestFindPositionOpenTime_FlipResetsOpenTime(t *testing.T) {
	now := time.Now()
	c := fillsServer(t, []Fill{
		{Coin: "BTC", Side: "B", Sz: 1, Time: now.Add(-5 * time.Hour).UnixMilli()},
		{Coin: "BTC", Side: "A", Sz: 2, Time: now.Add(-1 * time.Hour).UnixMilli()}, // flips long->short
	})

	opened, ok, err := c.FindPositionOpenTime(context.Background(), "0xabc", "BTC", "short", 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, now.Add(-1*time.Hour), opened, time.Second)
}

func TestFindPositionOpenTime_ClosedPositionReturnsNotOk(t *testing.T) {
	now := time.Now()
	c := fillsServer(t, []Fill{
		{Coin: "BTC", Side: "B", Sz: 1, Time: now.Add(-3 * time.Hour).UnixMilli()},
		{Coin: "BTC", Side: "A", Sz: 1, Time: now.Add(-1 * time.Hour).UnixMilli()}, // back to flat
	})

	_, ok, err := c.FindPositionOpenTime(context.Background(), "0xabc", "BTC", "long", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindPositionOpenTime_WrongDirectionReturnsNotOk(t *testing.T) {
	now := time.Now()
	c := fillsServer(t, []Fill{
		{Coin: "BTC", Side: "B", Sz: 1, Time: now.Add(-2 * time.Hour).UnixMilli()},
	})

	_, ok, err := c.FindPositionOpenTime(context.Background(), "0xabc", "BTC", "short", 7)
	require.NoError(t, err)
	assert.False(t, ok, "position is long but short was requested")
}

func TestFindPositionOpenTime_IgnoresOtherCoinsAndOutsideLookback(t *testing.T) {
	now := time.Now()
	c := fillsServer(t, []Fill{
		{Coin: "ETH", Side: "B", Sz: 1, Time: now.Add(-1 * time.Hour).UnixMilli()},
		{Coin: "BTC", Side: "B", Sz: 1, Time: now.Add(-30 * 24 * time.Hour).UnixMilli()}, // outside 7d lookback
	})

	_, ok, err := c.FindPositionOpenTime(context.Background(), "0xabc", "BTC", "long", 7)
	require.NoError(t, err)
	assert.False(t, ok)
}
