// Package funding caches per-coin funding rate context and classifies it
// relative to signal direction (§4.3).
package funding

import (
	"context"
	"time"

	"traderwatch/exchange"
	"traderwatch/logger"
	"traderwatch/store"
)

const defaultThreshold = 0.0001 // per 8h

type Tracker struct {
	client    *exchange.Client
	st        *store.Store
	threshold float64
}

func NewTracker(client *exchange.Client, st *store.Store) *Tracker {
	return &Tracker{client: client, st: st, threshold: defaultThreshold}
}

// RunCycle pulls metaAndAssetCtxs once and derives per-coin funding context.
// coinIndex maps coin symbol to its index in the universe array returned by
// meta — callers resolve that mapping from the meta payload (teacher-style
// boundary parsing keeps this package ignorant of the meta wire shape
// beyond the asset-context array it already consumes).
func (t *Tracker) RunCycle(ctx context.Context, coins []string, coinIndex map[string]int) {
	_, assetCtxs, err := t.client.MetaAndAssetCtxs(ctx)
	if err != nil {
		logger.Warnf("funding: metaAndAssetCtxs unavailable: %v", err)
		return
	}

	now := time.Now()
	for _, coin := range coins {
		idx, ok := coinIndex[coin]
		if !ok || idx >= len(assetCtxs) {
			continue
		}
		rate := float64(assetCtxs[idx].Funding)
		fc := store.FundingContext{
			Coin:          coin,
			FundingRate8h: rate,
			UpdatedAt:     now,
		}
		if err := t.st.UpsertFundingContext(fc); err != nil {
			logger.Errorf("funding: persist %s: %v", coin, err)
		}
	}
}

// Classify returns favorable/unfavorable/neutral for a position of the
// given direction given the coin's current funding rate.
func (t *Tracker) Classify(coin string, direction store.Direction) store.FundingClassification {
	fc, err := t.st.GetFundingContext(coin)
	if err != nil || fc == nil {
		return store.FundingNeutral
	}
	return ClassifyRate(fc.FundingRate8h, direction, t.threshold)
}

// ClassifyRate is the pure decision function: shorts receive funding (favorable)
// when the rate is above +threshold (longs pay); longs receive when the rate
// is below -threshold (shorts pay); otherwise neutral.
func ClassifyRate(rate float64, direction store.Direction, threshold float64) store.FundingClassification {
	if direction == store.Short {
		if rate > threshold {
			return store.FundingFavorable
		}
		if rate < -threshold {
			return store.FundingUnfavorable
		}
		return store.FundingNeutral
	}
	// long
	if rate < -threshold {
		return store.FundingFavorable
	}
	if rate > threshold {
		return store.FundingUnfavorable
	}
	return store.FundingNeutral
}
