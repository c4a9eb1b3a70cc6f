package store

func (s *Store) UpsertCoinVolatility(v CoinVolatility) error {
	_, err := s.db.Exec(`INSERT INTO coin_volatility(coin, atr_14d, atr_7d, daily_range_avg_pct,
		volatility_rank, last_price, price_change_24h_pct, updated_at) VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(coin) DO UPDATE SET atr_14d=excluded.atr_14d, atr_7d=excluded.atr_7d,
			daily_range_avg_pct=excluded.daily_range_avg_pct, volatility_rank=excluded.volatility_rank,
			last_price=excluded.last_price, price_change_24h_pct=excluded.price_change_24h_pct,
			updated_at=excluded.updated_at`,
		v.Coin, v.ATR14d, v.ATR7d, v.DailyRangeAvgPct, v.VolatilityRank, v.LastPrice, v.PriceChange24hPct, v.UpdatedAt)
	return err
}

func (s *Store) GetCoinVolatility(coin string) (*CoinVolatility, error) {
	var v CoinVolatility
	err := s.db.QueryRow(`SELECT coin, atr_14d, atr_7d, daily_range_avg_pct, volatility_rank,
		last_price, price_change_24h_pct, updated_at FROM coin_volatility WHERE coin = ?`, coin).
		Scan(&v.Coin, &v.ATR14d, &v.ATR7d, &v.DailyRangeAvgPct, &v.VolatilityRank, &v.LastPrice, &v.PriceChange24hPct, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) ListCoinVolatility() ([]CoinVolatility, error) {
	rows, err := s.db.Query(`SELECT coin, atr_14d, atr_7d, daily_range_avg_pct, volatility_rank,
		last_price, price_change_24h_pct, updated_at FROM coin_volatility`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CoinVolatility
	for rows.Next() {
		var v CoinVolatility
		if err := rows.Scan(&v.Coin, &v.ATR14d, &v.ATR7d, &v.DailyRangeAvgPct, &v.VolatilityRank,
			&v.LastPrice, &v.PriceChange24hPct, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) UpsertFundingContext(f FundingContext) error {
	_, err := s.db.Exec(`INSERT INTO funding_context(coin, funding_rate_8h, classification, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(coin) DO UPDATE SET funding_rate_8h=excluded.funding_rate_8h,
			classification=excluded.classification, updated_at=excluded.updated_at`,
		f.Coin, f.FundingRate8h, string(f.Classification), f.UpdatedAt)
	return err
}

func (s *Store) GetFundingContext(coin string) (*FundingContext, error) {
	var f FundingContext
	var cls string
	err := s.db.QueryRow(`SELECT coin, funding_rate_8h, classification, updated_at FROM funding_context WHERE coin = ?`, coin).
		Scan(&f.Coin, &f.FundingRate8h, &cls, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Classification = FundingClassification(cls)
	return &f, nil
}
