package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UpsertWallet creates the wallet row on first discovery, normalized to
// EIP-55 checksum form so the same address never appears twice under
// different casing. Never deleted.
func (s *Store) UpsertWallet(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("store: %q is not a valid hex address", address)
	}
	checksummed := common.HexToAddress(address).Hex()
	_, err := s.db.Exec(`INSERT INTO wallets(address) VALUES (?) ON CONFLICT(address) DO NOTHING`, checksummed)
	return err
}

func (s *Store) ListWallets() ([]Wallet, error) {
	rows, err := s.db.Query(`SELECT address, created_at FROM wallets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Wallet
	for rows.Next() {
		var w Wallet
		if err := rows.Scan(&w.Address, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListTrackedAddresses returns every wallet with is_tracked = true.
func (s *Store) ListTrackedAddresses() ([]string, error) {
	rows, err := s.db.Query(`SELECT address FROM trader_quality WHERE is_tracked = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// ListAddressesByTier returns every address with the given tier, tracked
// or not, used by the scheduler's staggered re-analysis batches.
func (s *Store) ListAddressesByTier(tier Tier) ([]string, error) {
	rows, err := s.db.Query(`SELECT address FROM trader_quality WHERE tier = ?`, string(tier))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
