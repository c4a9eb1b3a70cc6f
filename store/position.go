package store

import (
	"database/sql"
	"errors"
	"time"
)

func (s *Store) GetPosition(address, coin string) (*Position, error) {
	row := s.db.QueryRow(`SELECT address, coin, direction, size, entry_price, value_usd, leverage,
		unrealized_pnl, margin_used, liquidation_price,
		has_pending_entry, has_stop_order, has_tp_order,
		opened_at, peak_unrealized_pnl, trough_unrealized_pnl, updated_at
		FROM positions WHERE address = ? AND coin = ?`, address, coin)
	return scanPosition(row)
}

func scanPosition(row *sql.Row) (*Position, error) {
	var p Position
	var direction string
	var liq sql.NullFloat64
	err := row.Scan(&p.Address, &p.Coin, &direction, &p.Size, &p.EntryPrice, &p.ValueUSD, &p.Leverage,
		&p.UnrealizedPnl, &p.MarginUsed, &liq,
		&p.HasPendingEntry, &p.HasStopOrder, &p.HasTPOrder,
		&p.OpenedAt, &p.PeakUnrealizedPnl, &p.TroughUnrealizedPnl, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Direction = Direction(direction)
	if liq.Valid {
		v := liq.Float64
		p.LiquidationPx = &v
	}
	return &p, nil
}

// PositionsForAddress returns every current position row for one wallet.
func (s *Store) PositionsForAddress(address string) ([]Position, error) {
	rows, err := s.db.Query(`SELECT address, coin, direction, size, entry_price, value_usd, leverage,
		unrealized_pnl, margin_used, liquidation_price,
		has_pending_entry, has_stop_order, has_tp_order,
		opened_at, peak_unrealized_pnl, trough_unrealized_pnl, updated_at
		FROM positions WHERE address = ?`, address)
	if err != nil {
		return nil, err
	}
	return scanPositions(rows)
}

func scanPositions(rows *sql.Rows) ([]Position, error) {
	defer rows.Close()
	var out []Position
	for rows.Next() {
		var p Position
		var direction string
		var liq sql.NullFloat64
		if err := rows.Scan(&p.Address, &p.Coin, &direction, &p.Size, &p.EntryPrice, &p.ValueUSD, &p.Leverage,
			&p.UnrealizedPnl, &p.MarginUsed, &liq,
			&p.HasPendingEntry, &p.HasStopOrder, &p.HasTPOrder,
			&p.OpenedAt, &p.PeakUnrealizedPnl, &p.TroughUnrealizedPnl, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Direction = Direction(direction)
		if liq.Valid {
			v := liq.Float64
			p.LiquidationPx = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplacePositionsForAddress implements the §4.5 persistence order: delete
// all rows for addr, then insert the fresh set. Change-event publishing
// happens by the caller after this returns, preserving the "persist before
// publish" ordering guarantee.
func (s *Store) ReplacePositionsForAddress(address string, positions []Position) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM positions WHERE address = ?`, address); err != nil {
		return err
	}
	for _, p := range positions {
		var liq interface{}
		if p.LiquidationPx != nil {
			liq = *p.LiquidationPx
		}
		if _, err := tx.Exec(`INSERT INTO positions (
			address, coin, direction, size, entry_price, value_usd, leverage,
			unrealized_pnl, margin_used, liquidation_price,
			has_pending_entry, has_stop_order, has_tp_order,
			opened_at, peak_unrealized_pnl, trough_unrealized_pnl, updated_at
		) VALUES (?,?,?,?,?,?,?, ?,?,?, ?,?,?, ?,?,?, CURRENT_TIMESTAMP)`,
			p.Address, p.Coin, string(p.Direction), p.Size, p.EntryPrice, p.ValueUSD, p.Leverage,
			p.UnrealizedPnl, p.MarginUsed, liq,
			p.HasPendingEntry, p.HasStopOrder, p.HasTPOrder,
			p.OpenedAt, p.PeakUnrealizedPnl, p.TroughUnrealizedPnl); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PositionsOpenedSince returns tracked-quality positions on (coin,direction)
// with opened_at >= since, joined against trader_quality for tier info.
// Returned alongside each position is the owning address's tier.
type RosterEntry struct {
	Position     Position
	Tier         Tier
	WinRate      float64
	Pnl7d        float64
	AccountValue float64
}

// ConvictionPct is value_usd expressed as a percentage of the owning
// wallet's account value, clamped to 100 (§4.5 step 4).
func (r RosterEntry) ConvictionPct() float64 {
	if r.AccountValue <= 0 {
		return 0
	}
	pct := r.Position.ValueUSD / r.AccountValue * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func (s *Store) PositionsOpenedSince(coin string, direction Direction, since time.Time) ([]RosterEntry, error) {
	rows, err := s.db.Query(`SELECT p.address, p.coin, p.direction, p.size, p.entry_price, p.value_usd, p.leverage,
		p.unrealized_pnl, p.margin_used, p.liquidation_price,
		p.has_pending_entry, p.has_stop_order, p.has_tp_order,
		p.opened_at, p.peak_unrealized_pnl, p.trough_unrealized_pnl, p.updated_at,
		q.tier, q.win_rate, q.pnl_7d, q.account_value
		FROM positions p JOIN trader_quality q ON q.address = p.address
		WHERE p.coin = ? AND p.direction = ? AND q.is_tracked = 1 AND p.opened_at >= ?`,
		coin, string(direction), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var p Position
		var direction string
		var liq sql.NullFloat64
		var tier string
		var winRate, pnl7d, acctValue float64
		if err := rows.Scan(&p.Address, &p.Coin, &direction, &p.Size, &p.EntryPrice, &p.ValueUSD, &p.Leverage,
			&p.UnrealizedPnl, &p.MarginUsed, &liq,
			&p.HasPendingEntry, &p.HasStopOrder, &p.HasTPOrder,
			&p.OpenedAt, &p.PeakUnrealizedPnl, &p.TroughUnrealizedPnl, &p.UpdatedAt,
			&tier, &winRate, &pnl7d, &acctValue); err != nil {
			return nil, err
		}
		p.Direction = Direction(direction)
		if liq.Valid {
			v := liq.Float64
			p.LiquidationPx = &v
		}
		out = append(out, RosterEntry{Position: p, Tier: Tier(tier), WinRate: winRate, Pnl7d: pnl7d, AccountValue: acctValue})
	}
	return out, rows.Err()
}

// CountOpposingPositions counts tracked-quality positions on the opposite
// direction for the same coin, opened within the window — used for the
// directional-agreement calculation.
func (s *Store) CountOpposingPositions(coin string, direction Direction, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM positions p JOIN trader_quality q ON q.address = p.address
		WHERE p.coin = ? AND p.direction = ? AND q.is_tracked = 1 AND p.opened_at >= ?`,
		coin, string(direction.Opposite()), since).Scan(&n)
	return n, err
}

// InsertPositionChange appends one row to the change log.
func (s *Store) InsertPositionChange(pc PositionChange) error {
	var prevDir, newDir interface{}
	if pc.PrevDirection != nil {
		prevDir = string(*pc.PrevDirection)
	}
	if pc.NewDirection != nil {
		newDir = string(*pc.NewDirection)
	}
	_, err := s.db.Exec(`INSERT INTO position_changes(id, address, coin, event_type,
		prev_direction, new_direction, prev_size, new_size, size_change, price_at_event, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		pc.ID, pc.Address, pc.Coin, string(pc.EventType), prevDir, newDir,
		pc.PrevSize, pc.NewSize, pc.SizeChange, pc.PriceAtEvent, pc.DetectedAt)
	return err
}
