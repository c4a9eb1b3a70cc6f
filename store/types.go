// Package store is the sqlite-backed row store for every entity in the
// data model: Wallet, TraderQuality, EquitySnapshot, Position,
// PositionChange, Signal, CoinVolatility, FundingContext, RealtimeFill and
// AssetPerformance. It follows the teacher's store.Strategy idiom: a thin
// struct wrapping *sql.DB, CREATE TABLE IF NOT EXISTS in initTables, JSON
// columns for nested config/snapshot data, and upsert-by-key writes.
package store

import "time"

type Tier string

const (
	TierElite    Tier = "elite"
	TierGood     Tier = "good"
	TierWeak     Tier = "weak"
	TierInactive Tier = "inactive"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

type Wallet struct {
	Address   string
	CreatedAt time.Time
}

type TraderQuality struct {
	Address      string
	Tier         Tier
	IsTracked    bool
	AccountValue float64

	Pnl7d, Pnl30d, Pnl60d, Pnl90d    float64
	Roi7dPct, Roi30dPct, Roi60dPct, Roi90dPct float64
	PnlCalcMethod7d                 string

	WinRate             float64
	ProfitFactor        float64
	TotalTrades         int
	AvgWinnerPct        float64
	AvgLoserPct         float64
	MaxWinStreak        int
	MaxLossStreak       int
	AvgHoldTimeHours    float64
	TradeFrequencyPerDay float64

	MaxDrawdown7dPct  float64
	MaxDrawdown30dPct float64
	CurrentDrawdownPct float64
	PeakEquity        float64
	Sharpe            float64
	Sortino           float64

	StrategyLabel    string
	ConsistencyScore float64

	TierChangeCount        int
	UnrealizedDrawdownSince time.Time

	AnalyzedAt time.Time
}

type EquitySnapshot struct {
	Address      string
	SnapshotDate string // YYYY-MM-DD (UTC)
	AccountValue float64
}

type Position struct {
	Address    string
	Coin       string
	Direction  Direction
	Size       float64
	EntryPrice float64
	ValueUSD   float64
	Leverage   float64

	UnrealizedPnl float64
	MarginUsed    float64
	LiquidationPx *float64

	HasPendingEntry bool
	HasStopOrder    bool
	HasTPOrder      bool

	OpenedAt time.Time

	PeakUnrealizedPnl   float64
	TroughUnrealizedPnl float64

	UpdatedAt time.Time
}

type EventType string

const (
	EventOpen     EventType = "open"
	EventIncrease EventType = "increase"
	EventDecrease EventType = "decrease"
	EventClose    EventType = "close"
	EventFlip     EventType = "flip"
)

type PositionChange struct {
	ID        string
	Address   string
	Coin      string
	EventType EventType

	PrevDirection *Direction
	NewDirection  *Direction
	PrevSize      float64
	NewSize       float64
	SizeChange    float64
	PriceAtEvent  float64

	DetectedAt time.Time
}

type TraderSnapshot struct {
	Address       string
	TierAtCreate  Tier
	Pnl7d         float64
	WinRate       float64
	PositionValue float64
	EntryPrice    float64
	OpenedAt      time.Time
	Exited        bool
}

type SignalTier string

const (
	SignalEliteEntry SignalTier = "elite_entry"
	SignalConfirmed  SignalTier = "confirmed"
	SignalConsensus  SignalTier = "consensus"
)

type SignalStrength string

const (
	StrengthMedium SignalStrength = "medium"
	StrengthStrong SignalStrength = "strong"
)

type SignalOutcome string

const (
	OutcomeStopped SignalOutcome = "stopped"
	OutcomeTP3     SignalOutcome = "tp3"
	OutcomeExpired SignalOutcome = "expired"
	OutcomeClosed  SignalOutcome = "closed"
)

type Signal struct {
	ID        string
	Coin      string
	Direction Direction

	EliteCount   int
	GoodCount    int
	TotalTraders int
	Traders      []TraderSnapshot

	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit1  float64
	TakeProfit2  float64
	TakeProfit3  float64

	FundingContext   string
	AvgConvictionPct float64
	Confidence       float64
	Strength         SignalStrength
	SignalTier       SignalTier

	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
	Outcome            *SignalOutcome
	FinalPnlPct        *float64
	HitStop            bool
	HitTP1             bool
	HitTP2             bool
	HitTP3             bool
	Invalidated        bool
	InvalidationReason string

	MaxPnlPct   float64
	MinPnlPct   float64
	PeakPrice   float64
	TroughPrice float64
	DurationHours float64
}

type CoinVolatility struct {
	Coin              string
	ATR14d            float64
	ATR7d             float64
	DailyRangeAvgPct  float64
	VolatilityRank    float64
	LastPrice         float64
	PriceChange24hPct float64
	UpdatedAt         time.Time
}

type FundingClassification string

const (
	FundingFavorable   FundingClassification = "favorable"
	FundingUnfavorable FundingClassification = "unfavorable"
	FundingNeutral     FundingClassification = "neutral"
)

type FundingContext struct {
	Coin           string
	FundingRate8h  float64
	Classification FundingClassification
	UpdatedAt      time.Time
}

type RealtimeFill struct {
	TxHash    string
	OID       int64
	Address   string
	Coin      string
	Side      string
	Price     float64
	Size      float64
	ClosedPnl float64
	Tier      Tier
	IsExit    bool
	Time      time.Time
}

type AssetPerformance struct {
	Coin              string
	TotalSignals      int
	WinningSignals    int
	WinRate           float64
	AvgPnlPct         float64
	TotalPnlPct       float64
	AvgDurationHours  float64
	BestSignalPnlPct  float64
	WorstSignalPnlPct float64
	UpdatedAt         time.Time
}

// TierChange is a single row of the tier-change history table.
type TierChange struct {
	Address   string
	FromTier  Tier
	ToTier    Tier
	Reason    string
	ChangedAt time.Time
}
