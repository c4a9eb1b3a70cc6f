package store

import "database/sql"

// UpsertRealtimeFill is idempotent on tx_hash (P5 — never persisted twice
// per (hash, oid); oid is carried alongside hash for the dedup key but
// tx_hash alone is the exchange-supplied unique identifier per §3).
func (s *Store) UpsertRealtimeFill(f RealtimeFill) error {
	_, err := s.db.Exec(`INSERT INTO realtime_fills(tx_hash, oid, address, coin, side, price, size,
		closed_pnl, tier, is_exit, time) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tx_hash) DO NOTHING`,
		f.TxHash, f.OID, f.Address, f.Coin, f.Side, f.Price, f.Size, f.ClosedPnl, string(f.Tier), f.IsExit, f.Time)
	return err
}

func (s *Store) HasRealtimeFill(txHash string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM realtime_fills WHERE tx_hash = ?`, txHash).Scan(&n)
	return n > 0, err
}

func (s *Store) UpsertAssetPerformance(a AssetPerformance) error {
	_, err := s.db.Exec(`INSERT INTO asset_performance(coin, total_signals, winning_signals, win_rate,
		avg_pnl_pct, total_pnl_pct, avg_duration_hours, best_signal_pnl_pct, worst_signal_pnl_pct, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?, CURRENT_TIMESTAMP)
		ON CONFLICT(coin) DO UPDATE SET total_signals=excluded.total_signals,
			winning_signals=excluded.winning_signals, win_rate=excluded.win_rate,
			avg_pnl_pct=excluded.avg_pnl_pct, total_pnl_pct=excluded.total_pnl_pct,
			avg_duration_hours=excluded.avg_duration_hours,
			best_signal_pnl_pct=excluded.best_signal_pnl_pct, worst_signal_pnl_pct=excluded.worst_signal_pnl_pct,
			updated_at=CURRENT_TIMESTAMP`,
		a.Coin, a.TotalSignals, a.WinningSignals, a.WinRate, a.AvgPnlPct, a.TotalPnlPct,
		a.AvgDurationHours, a.BestSignalPnlPct, a.WorstSignalPnlPct)
	return err
}

func (s *Store) GetAssetPerformance(coin string) (*AssetPerformance, error) {
	var a AssetPerformance
	err := s.db.QueryRow(`SELECT coin, total_signals, winning_signals, win_rate, avg_pnl_pct,
		total_pnl_pct, avg_duration_hours, best_signal_pnl_pct, worst_signal_pnl_pct, updated_at
		FROM asset_performance WHERE coin = ?`, coin).Scan(
		&a.Coin, &a.TotalSignals, &a.WinningSignals, &a.WinRate, &a.AvgPnlPct,
		&a.TotalPnlPct, &a.AvgDurationHours, &a.BestSignalPnlPct, &a.WorstSignalPnlPct, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return &AssetPerformance{Coin: coin}, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
