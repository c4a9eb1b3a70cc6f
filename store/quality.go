package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertTraderQuality writes the full evaluator output for one wallet.
// The Quality Evaluator is the sole writer of this table (§3 ownership).
func (s *Store) UpsertTraderQuality(q TraderQuality) error {
	_, err := s.db.Exec(`
		INSERT INTO trader_quality (
			address, tier, is_tracked, account_value,
			pnl_7d, pnl_30d, pnl_60d, pnl_90d,
			roi_7d_pct, roi_30d_pct, roi_60d_pct, roi_90d_pct, pnl_calc_method_7d,
			win_rate, profit_factor, total_trades,
			avg_winner_pct, avg_loser_pct, max_win_streak, max_loss_streak,
			avg_hold_time_hours, trade_frequency_per_day,
			max_drawdown_7d_pct, max_drawdown_30d_pct, current_drawdown_pct,
			peak_equity, sharpe, sortino,
			strategy_label, consistency_score,
			tier_change_count, unrealized_drawdown_since, analyzed_at
		) VALUES (?,?,?,?, ?,?,?,?, ?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?, ?,?,?, ?,?,?, ?,?, ?,?,?)
		ON CONFLICT(address) DO UPDATE SET
			tier=excluded.tier, is_tracked=excluded.is_tracked, account_value=excluded.account_value,
			pnl_7d=excluded.pnl_7d, pnl_30d=excluded.pnl_30d, pnl_60d=excluded.pnl_60d, pnl_90d=excluded.pnl_90d,
			roi_7d_pct=excluded.roi_7d_pct, roi_30d_pct=excluded.roi_30d_pct,
			roi_60d_pct=excluded.roi_60d_pct, roi_90d_pct=excluded.roi_90d_pct,
			pnl_calc_method_7d=excluded.pnl_calc_method_7d,
			win_rate=excluded.win_rate, profit_factor=excluded.profit_factor, total_trades=excluded.total_trades,
			avg_winner_pct=excluded.avg_winner_pct, avg_loser_pct=excluded.avg_loser_pct,
			max_win_streak=excluded.max_win_streak, max_loss_streak=excluded.max_loss_streak,
			avg_hold_time_hours=excluded.avg_hold_time_hours, trade_frequency_per_day=excluded.trade_frequency_per_day,
			max_drawdown_7d_pct=excluded.max_drawdown_7d_pct, max_drawdown_30d_pct=excluded.max_drawdown_30d_pct,
			current_drawdown_pct=excluded.current_drawdown_pct,
			peak_equity=excluded.peak_equity, sharpe=excluded.sharpe, sortino=excluded.sortino,
			strategy_label=excluded.strategy_label, consistency_score=excluded.consistency_score,
			tier_change_count=excluded.tier_change_count,
			unrealized_drawdown_since=excluded.unrealized_drawdown_since,
			analyzed_at=excluded.analyzed_at`,
		q.Address, string(q.Tier), q.IsTracked, q.AccountValue,
		q.Pnl7d, q.Pnl30d, q.Pnl60d, q.Pnl90d,
		q.Roi7dPct, q.Roi30dPct, q.Roi60dPct, q.Roi90dPct, q.PnlCalcMethod7d,
		q.WinRate, q.ProfitFactor, q.TotalTrades,
		q.AvgWinnerPct, q.AvgLoserPct, q.MaxWinStreak, q.MaxLossStreak,
		q.AvgHoldTimeHours, q.TradeFrequencyPerDay,
		q.MaxDrawdown7dPct, q.MaxDrawdown30dPct, q.CurrentDrawdownPct,
		q.PeakEquity, q.Sharpe, q.Sortino,
		q.StrategyLabel, q.ConsistencyScore,
		q.TierChangeCount, nullTime(&q.UnrealizedDrawdownSince), q.AnalyzedAt,
	)
	return err
}

func (s *Store) GetTraderQuality(address string) (*TraderQuality, error) {
	row := s.db.QueryRow(`SELECT
		address, tier, is_tracked, account_value,
		pnl_7d, pnl_30d, pnl_60d, pnl_90d,
		roi_7d_pct, roi_30d_pct, roi_60d_pct, roi_90d_pct, pnl_calc_method_7d,
		win_rate, profit_factor, total_trades,
		avg_winner_pct, avg_loser_pct, max_win_streak, max_loss_streak,
		avg_hold_time_hours, trade_frequency_per_day,
		max_drawdown_7d_pct, max_drawdown_30d_pct, current_drawdown_pct,
		peak_equity, sharpe, sortino,
		strategy_label, consistency_score,
		tier_change_count, unrealized_drawdown_since, analyzed_at
		FROM trader_quality WHERE address = ?`, address)
	return scanTraderQuality(row)
}

func scanTraderQuality(row *sql.Row) (*TraderQuality, error) {
	var q TraderQuality
	var tier string
	var drawdownSince sql.NullTime
	var analyzedAt sql.NullTime
	err := row.Scan(
		&q.Address, &tier, &q.IsTracked, &q.AccountValue,
		&q.Pnl7d, &q.Pnl30d, &q.Pnl60d, &q.Pnl90d,
		&q.Roi7dPct, &q.Roi30dPct, &q.Roi60dPct, &q.Roi90dPct, &q.PnlCalcMethod7d,
		&q.WinRate, &q.ProfitFactor, &q.TotalTrades,
		&q.AvgWinnerPct, &q.AvgLoserPct, &q.MaxWinStreak, &q.MaxLossStreak,
		&q.AvgHoldTimeHours, &q.TradeFrequencyPerDay,
		&q.MaxDrawdown7dPct, &q.MaxDrawdown30dPct, &q.CurrentDrawdownPct,
		&q.PeakEquity, &q.Sharpe, &q.Sortino,
		&q.StrategyLabel, &q.ConsistencyScore,
		&q.TierChangeCount, &drawdownSince, &analyzedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q.Tier = Tier(tier)
	if drawdownSince.Valid {
		q.UnrealizedDrawdownSince = drawdownSince.Time
	}
	if analyzedAt.Valid {
		q.AnalyzedAt = analyzedAt.Time
	}
	return &q, nil
}

// RecordTierChange appends a history row and bumps tier_change_count.
func (s *Store) RecordTierChange(tc TierChange) error {
	_, err := s.db.Exec(`INSERT INTO tier_changes(address, from_tier, to_tier, reason, changed_at) VALUES (?,?,?,?,?)`,
		tc.Address, string(tc.FromTier), string(tc.ToTier), tc.Reason, tc.ChangedAt)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`UPDATE trader_quality SET tier_change_count = tier_change_count + 1 WHERE address = ?`, tc.Address)
	return err
}

// UpsertEquitySnapshot enforces the "at most one per day per wallet"
// invariant via upsert on the (address, snapshot_date) key.
func (s *Store) UpsertEquitySnapshot(snap EquitySnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO equity_snapshots(address, snapshot_date, account_value) VALUES (?,?,?)
		ON CONFLICT(address, snapshot_date) DO UPDATE SET account_value = excluded.account_value`,
		snap.Address, snap.SnapshotDate, snap.AccountValue)
	return err
}

func (s *Store) HasEquitySnapshot(address, date string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM equity_snapshots WHERE address=? AND snapshot_date=?`, address, date).Scan(&n)
	return n > 0, err
}

// EquitySnapshotsSince returns snapshots at or after fromDate, oldest first.
func (s *Store) EquitySnapshotsSince(address, fromDate string) ([]EquitySnapshot, error) {
	rows, err := s.db.Query(`SELECT address, snapshot_date, account_value FROM equity_snapshots
		WHERE address = ? AND snapshot_date >= ? ORDER BY snapshot_date ASC`, address, fromDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Address, &e.SnapshotDate, &e.AccountValue); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneEquitySnapshots deletes rows older than the retention window.
func (s *Store) PruneEquitySnapshots(olderThan time.Time) error {
	_, err := s.db.Exec(`DELETE FROM equity_snapshots WHERE snapshot_date < ?`, olderThan.Format("2006-01-02"))
	return err
}
