// Package signal implements the signal generator (§4.6) and signal
// tracker (§4.7): consensus-rule signal formation/update/invalidation from
// position-change events, and mark-to-market/outcome detection.
package signal

import "traderwatch/store"

// Eligible implements §4.6 step 4: a signal is created if elite_count>=1,
// or good_count>=2, or (elite_count>=1 AND good_count>=1).
func Eligible(eliteCount, goodCount int) bool {
	return eliteCount >= 1 || goodCount >= 2 || (eliteCount >= 1 && goodCount >= 1)
}

// Strength implements §4.6 step 4's strength rule.
func Strength(eliteCount, goodCount int) store.SignalStrength {
	if eliteCount >= 2 || goodCount >= 4 || (eliteCount >= 1 && goodCount >= 2) {
		return store.StrengthStrong
	}
	return store.StrengthMedium
}

// ClassifyTier implements §4.6 step 9.
func ClassifyTier(eliteCount, goodCount int, freshOpen bool) store.SignalTier {
	switch {
	case eliteCount == 1 && goodCount == 0 && freshOpen:
		return store.SignalEliteEntry
	case (eliteCount >= 1 && goodCount >= 1) || eliteCount >= 2:
		return store.SignalConfirmed
	default:
		return store.SignalConsensus
	}
}

// Confidence implements §4.6 step 8: a banded sum of directional
// agreement, conviction, elite count, and strength, plus conviction
// bonuses. Bands are this implementation's concrete resolution where the
// spec names the inputs but not exact weights (documented in DESIGN.md).
func Confidence(directionalAgreement float64, avgConvictionPct float64, eliteCount int, strength store.SignalStrength, highConviction, mediumConviction float64) float64 {
	score := 0.0

	switch {
	case directionalAgreement >= 0.9:
		score += 30
	case directionalAgreement >= 0.75:
		score += 20
	case directionalAgreement >= 0.65:
		score += 10
	}

	switch {
	case eliteCount >= 2:
		score += 30
	case eliteCount >= 1:
		score += 20
	default:
		score += 5
	}

	if strength == store.StrengthStrong {
		score += 20
	} else {
		score += 10
	}

	switch {
	case avgConvictionPct >= highConviction:
		score += 20
	case avgConvictionPct >= mediumConviction:
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

// TakeProfits computes tp1/tp2/tp3 at k=1,2,3 multiples of the
// entry-to-stop distance, signed by direction (§4.6 step 6).
func TakeProfits(entry, stop float64, direction store.Direction) (tp1, tp2, tp3 float64) {
	distance := entry - stop
	if direction == store.Short {
		distance = stop - entry
	}
	if direction == store.Long {
		return entry + distance, entry + 2*distance, entry + 3*distance
	}
	return entry - distance, entry - 2*distance, entry - 3*distance
}

// DirectionalAgreement = roster_count / (roster_count + opposing_count).
func DirectionalAgreement(rosterCount, opposingCount int) float64 {
	total := rosterCount + opposingCount
	if total == 0 {
		return 0
	}
	return float64(rosterCount) / float64(total)
}
