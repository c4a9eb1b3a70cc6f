package exchange

import (
	"context"
	"sort"
	"time"
)

// FindPositionOpenTime walks filtered fills in chronological order,
// maintaining a running position size, and returns the fill time at which
// the currently open position on (coin, direction) started. Used to
// back-fill Position.opened_at (§4.5). Returns ok=false if no open-origin
// fill is found within lookbackDays.
func (c *Client) FindPositionOpenTime(ctx context.Context, addr, coin string, direction string, lookbackDays int) (time.Time, bool, error) {
	fills, err := c.UserFills(ctx, addr)
	if err != nil {
		return time.Time{}, false, err
	}

	cutoff := time.Now().Add(-time.Duration(lookbackDays) * 24 * time.Hour).UnixMilli()
	filtered := make([]Fill, 0, len(fills))
	for _, f := range fills {
		if f.Coin == coin && f.Time >= cutoff {
			filtered = append(filtered, f)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Time < filtered[j].Time })

	var runningSize float64 // signed: long positive, short negative
	var openSince time.Time
	for _, f := range filtered {
		delta := float64(f.Sz)
		if f.Side == "A" { // sell reduces/shorts
			delta = -delta
		}
		prevSize := runningSize
		runningSize += delta

		prevFlat := prevSize == 0
		nowFlat := runningSize == 0
		sameSign := (prevSize > 0 && runningSize > 0) || (prevSize < 0 && runningSize < 0)

		if nowFlat {
			continue
		}
		if prevFlat || !sameSign {
			// position started fresh from flat, or flipped sign: either
			// way the currently-open leg began at this fill.
			openSince = time.UnixMilli(f.Time)
		}
	}

	if runningSize == 0 || openSince.IsZero() {
		return time.Time{}, false, nil
	}
	wantLong := direction == "long"
	haveLong := runningSize > 0
	if wantLong != haveLong {
		return time.Time{}, false, nil
	}
	return openSince, true, nil
}
