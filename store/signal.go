package store

import (
	"database/sql"
	"encoding/json"
	"errors"
)

// UpsertSignal writes a Signal row. Both the Signal Generator and the
// Signal Tracker write through it; the Tracker changes only the
// mark-to-market and outcome fields.
func (s *Store) UpsertSignal(sig Signal) error {
	tradersJSON, err := json.Marshal(sig.Traders)
	if err != nil {
		return err
	}
	var outcome interface{}
	if sig.Outcome != nil {
		outcome = string(*sig.Outcome)
	}
	var finalPnl interface{}
	if sig.FinalPnlPct != nil {
		finalPnl = *sig.FinalPnlPct
	}
	var closedAt interface{}
	if sig.ClosedAt != nil {
		closedAt = *sig.ClosedAt
	}
	_, err = s.db.Exec(`INSERT INTO signals (
		id, coin, direction, elite_count, good_count, total_traders, traders_json,
		entry_price, current_price, stop_loss, take_profit_1, take_profit_2, take_profit_3,
		funding_context, avg_conviction_pct, confidence, strength, signal_tier,
		is_active, created_at, updated_at, closed_at, outcome, final_pnl_pct,
		hit_stop, hit_tp1, hit_tp2, hit_tp3, invalidated, invalidation_reason,
		max_pnl_pct, min_pnl_pct, peak_price, trough_price, duration_hours
	) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		elite_count=excluded.elite_count, good_count=excluded.good_count, total_traders=excluded.total_traders,
		traders_json=excluded.traders_json,
		entry_price=excluded.entry_price, current_price=excluded.current_price,
		stop_loss=excluded.stop_loss, take_profit_1=excluded.take_profit_1,
		take_profit_2=excluded.take_profit_2, take_profit_3=excluded.take_profit_3,
		funding_context=excluded.funding_context, avg_conviction_pct=excluded.avg_conviction_pct,
		confidence=excluded.confidence, strength=excluded.strength, signal_tier=excluded.signal_tier,
		is_active=excluded.is_active, updated_at=excluded.updated_at, closed_at=excluded.closed_at,
		outcome=excluded.outcome, final_pnl_pct=excluded.final_pnl_pct,
		hit_stop=excluded.hit_stop, hit_tp1=excluded.hit_tp1, hit_tp2=excluded.hit_tp2, hit_tp3=excluded.hit_tp3,
		invalidated=excluded.invalidated, invalidation_reason=excluded.invalidation_reason,
		max_pnl_pct=excluded.max_pnl_pct, min_pnl_pct=excluded.min_pnl_pct,
		peak_price=excluded.peak_price, trough_price=excluded.trough_price,
		duration_hours=excluded.duration_hours`,
		sig.ID, sig.Coin, string(sig.Direction), sig.EliteCount, sig.GoodCount, sig.TotalTraders, string(tradersJSON),
		sig.EntryPrice, sig.CurrentPrice, sig.StopLoss, sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
		sig.FundingContext, sig.AvgConvictionPct, sig.Confidence, string(sig.Strength), string(sig.SignalTier),
		sig.IsActive, sig.CreatedAt, sig.UpdatedAt, closedAt, outcome, finalPnl,
		sig.HitStop, sig.HitTP1, sig.HitTP2, sig.HitTP3, sig.Invalidated, sig.InvalidationReason,
		sig.MaxPnlPct, sig.MinPnlPct, sig.PeakPrice, sig.TroughPrice, sig.DurationHours,
	)
	return err
}

func (s *Store) GetActiveSignal(coin string, direction Direction) (*Signal, error) {
	row := s.db.QueryRow(signalSelect+` WHERE coin=? AND direction=? AND is_active=1`, coin, string(direction))
	return scanSignal(row)
}

func (s *Store) GetSignal(id string) (*Signal, error) {
	row := s.db.QueryRow(signalSelect+` WHERE id=?`, id)
	return scanSignal(row)
}

func (s *Store) ListActiveSignals() ([]Signal, error) {
	rows, err := s.db.Query(signalSelect + ` WHERE is_active=1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		sig, err := scanSignalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

const signalSelect = `SELECT id, coin, direction, elite_count, good_count, total_traders, traders_json,
	entry_price, current_price, stop_loss, take_profit_1, take_profit_2, take_profit_3,
	funding_context, avg_conviction_pct, confidence, strength, signal_tier,
	is_active, created_at, updated_at, closed_at, outcome, final_pnl_pct,
	hit_stop, hit_tp1, hit_tp2, hit_tp3, invalidated, invalidation_reason,
	max_pnl_pct, min_pnl_pct, peak_price, trough_price, duration_hours
	FROM signals`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row *sql.Row) (*Signal, error) {
	sig, err := scanSignalGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sig, err
}

func scanSignalRow(rows *sql.Rows) (*Signal, error) {
	return scanSignalGeneric(rows)
}

func scanSignalGeneric(r rowScanner) (*Signal, error) {
	var sig Signal
	var direction, strength, tier, tradersJSON string
	var closedAt sql.NullTime
	var outcome sql.NullString
	var finalPnl sql.NullFloat64

	err := r.Scan(&sig.ID, &sig.Coin, &direction, &sig.EliteCount, &sig.GoodCount, &sig.TotalTraders, &tradersJSON,
		&sig.EntryPrice, &sig.CurrentPrice, &sig.StopLoss, &sig.TakeProfit1, &sig.TakeProfit2, &sig.TakeProfit3,
		&sig.FundingContext, &sig.AvgConvictionPct, &sig.Confidence, &strength, &tier,
		&sig.IsActive, &sig.CreatedAt, &sig.UpdatedAt, &closedAt, &outcome, &finalPnl,
		&sig.HitStop, &sig.HitTP1, &sig.HitTP2, &sig.HitTP3, &sig.Invalidated, &sig.InvalidationReason,
		&sig.MaxPnlPct, &sig.MinPnlPct, &sig.PeakPrice, &sig.TroughPrice, &sig.DurationHours)
	if err != nil {
		return nil, err
	}
	sig.Direction = Direction(direction)
	sig.Strength = SignalStrength(strength)
	sig.SignalTier = SignalTier(tier)
	if err := json.Unmarshal([]byte(tradersJSON), &sig.Traders); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		sig.ClosedAt = &t
	}
	if outcome.Valid {
		o := SignalOutcome(outcome.String)
		sig.Outcome = &o
	}
	if finalPnl.Valid {
		v := finalPnl.Float64
		sig.FinalPnlPct = &v
	}
	return &sig, nil
}
