package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite handle. Grounded on the teacher's
// store.StrategyStore{db *sql.DB} idiom: one struct per logical table
// group, CREATE TABLE IF NOT EXISTS at construction, triggers for
// updated_at bookkeeping.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline avoids SQLITE_BUSY
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		return nil, fmt.Errorf("store: init tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			address TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS trader_quality (
			address TEXT PRIMARY KEY REFERENCES wallets(address),
			tier TEXT NOT NULL DEFAULT 'inactive',
			is_tracked INTEGER NOT NULL DEFAULT 0,
			account_value REAL NOT NULL DEFAULT 0,
			pnl_7d REAL, pnl_30d REAL, pnl_60d REAL, pnl_90d REAL,
			roi_7d_pct REAL, roi_30d_pct REAL, roi_60d_pct REAL, roi_90d_pct REAL,
			pnl_calc_method_7d TEXT,
			win_rate REAL, profit_factor REAL, total_trades INTEGER,
			avg_winner_pct REAL, avg_loser_pct REAL,
			max_win_streak INTEGER, max_loss_streak INTEGER,
			avg_hold_time_hours REAL, trade_frequency_per_day REAL,
			max_drawdown_7d_pct REAL, max_drawdown_30d_pct REAL, current_drawdown_pct REAL,
			peak_equity REAL, sharpe REAL, sortino REAL,
			strategy_label TEXT, consistency_score REAL,
			tier_change_count INTEGER NOT NULL DEFAULT 0,
			unrealized_drawdown_since TIMESTAMP,
			analyzed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tier_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			address TEXT NOT NULL,
			from_tier TEXT NOT NULL,
			to_tier TEXT NOT NULL,
			reason TEXT NOT NULL,
			changed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			address TEXT NOT NULL,
			snapshot_date TEXT NOT NULL,
			account_value REAL NOT NULL,
			PRIMARY KEY (address, snapshot_date)
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			address TEXT NOT NULL,
			coin TEXT NOT NULL,
			direction TEXT NOT NULL,
			size REAL NOT NULL,
			entry_price REAL NOT NULL,
			value_usd REAL NOT NULL,
			leverage REAL NOT NULL,
			unrealized_pnl REAL NOT NULL,
			margin_used REAL NOT NULL,
			liquidation_price REAL,
			has_pending_entry INTEGER NOT NULL DEFAULT 0,
			has_stop_order INTEGER NOT NULL DEFAULT 0,
			has_tp_order INTEGER NOT NULL DEFAULT 0,
			opened_at TIMESTAMP NOT NULL,
			peak_unrealized_pnl REAL NOT NULL DEFAULT 0,
			trough_unrealized_pnl REAL NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (address, coin)
		)`,
		`CREATE TABLE IF NOT EXISTS position_changes (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			coin TEXT NOT NULL,
			event_type TEXT NOT NULL,
			prev_direction TEXT,
			new_direction TEXT,
			prev_size REAL,
			new_size REAL,
			size_change REAL,
			price_at_event REAL,
			detected_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			coin TEXT NOT NULL,
			direction TEXT NOT NULL,
			elite_count INTEGER, good_count INTEGER, total_traders INTEGER,
			traders_json TEXT NOT NULL DEFAULT '[]',
			entry_price REAL, current_price REAL,
			stop_loss REAL, take_profit_1 REAL, take_profit_2 REAL, take_profit_3 REAL,
			funding_context TEXT, avg_conviction_pct REAL,
			confidence REAL, strength TEXT, signal_tier TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP,
			outcome TEXT,
			final_pnl_pct REAL,
			hit_stop INTEGER NOT NULL DEFAULT 0,
			hit_tp1 INTEGER NOT NULL DEFAULT 0,
			hit_tp2 INTEGER NOT NULL DEFAULT 0,
			hit_tp3 INTEGER NOT NULL DEFAULT 0,
			invalidated INTEGER NOT NULL DEFAULT 0,
			invalidation_reason TEXT,
			max_pnl_pct REAL, min_pnl_pct REAL,
			peak_price REAL, trough_price REAL,
			duration_hours REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_active_coin_dir ON signals(coin, direction, is_active)`,
		`CREATE TRIGGER IF NOT EXISTS trg_signals_updated_at
			AFTER UPDATE ON signals
			BEGIN
				UPDATE signals SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id AND NEW.updated_at = OLD.updated_at;
			END`,
		`CREATE TABLE IF NOT EXISTS coin_volatility (
			coin TEXT PRIMARY KEY,
			atr_14d REAL, atr_7d REAL, daily_range_avg_pct REAL,
			volatility_rank REAL, last_price REAL, price_change_24h_pct REAL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS funding_context (
			coin TEXT PRIMARY KEY,
			funding_rate_8h REAL,
			classification TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS realtime_fills (
			tx_hash TEXT PRIMARY KEY,
			oid INTEGER,
			address TEXT NOT NULL,
			coin TEXT NOT NULL,
			side TEXT,
			price REAL, size REAL, closed_pnl REAL,
			tier TEXT, is_exit INTEGER NOT NULL DEFAULT 0,
			time TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS asset_performance (
			coin TEXT PRIMARY KEY,
			total_signals INTEGER NOT NULL DEFAULT 0,
			winning_signals INTEGER NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			avg_pnl_pct REAL NOT NULL DEFAULT 0,
			total_pnl_pct REAL NOT NULL DEFAULT 0,
			avg_duration_hours REAL NOT NULL DEFAULT 0,
			best_signal_pnl_pct REAL NOT NULL DEFAULT 0,
			worst_signal_pnl_pct REAL NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
