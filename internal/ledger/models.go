package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// All monetary values are int64 minor currency units.

const (
	BonusStatusActive    = "active"
	BonusStatusCompleted = "completed"
	BonusStatusExpired   = "expired"
	BonusStatusCancelled = "cancelled"
)

const (
	DepositStatusPending   = "pending"
	DepositStatusCompleted = "completed"
	DepositStatusFailed    = "failed"
)

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusApproved  = "approved"
	WithdrawalStatusRejected  = "rejected"
	WithdrawalStatusCompleted = "completed"
)

const (
	BetStatusSettled = "settled"
)

const (
	GameCategorySlots  = "slots"
	GameCategoryArcade = "arcade"
)

// Operator is the house account, the sole counterparty: its balance moves
// opposite to every player-side money movement.
type Operator struct {
	OperatorID    string    `gorm:"column:operator_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Name          string    `gorm:"column:name;type:varchar(100);not null"`
	Balance       int64     `gorm:"column:balance;not null;default:0"`
	SlotsBalance  int64     `gorm:"column:slots_balance;not null;default:0"`
	ArcadeBalance int64     `gorm:"column:arcade_balance;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// OperatorGameSetting marks a game as disabled for an operator. Presence of a
// row with Disabled=true blocks settlement for that game.
type OperatorGameSetting struct {
	OperatorID string `gorm:"column:operator_id;type:uuid;not null;uniqueIndex:idx_operator_game"`
	GameID     string `gorm:"column:game_id;type:varchar(100);not null;uniqueIndex:idx_operator_game"`
	Disabled   bool   `gorm:"column:disabled;not null;default:false"`
}

type User struct {
	UserID     string    `gorm:"column:user_id;primaryKey;type:uuid"`
	OperatorID string    `gorm:"column:operator_id;type:uuid;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null;default:now()"`
}

// UserBalance is the single real-money row per user. real_balance never goes
// below zero; deposit_wr_remaining only decreases toward zero.
type UserBalance struct {
	UserID                   string    `gorm:"column:user_id;primaryKey;type:uuid"`
	RealBalance              int64     `gorm:"column:real_balance;not null;default:0"`
	DepositWageringRemaining int64     `gorm:"column:deposit_wr_remaining;not null;default:0"`
	TotalWagered             int64     `gorm:"column:total_wagered;not null;default:0"`
	TotalWon                 int64     `gorm:"column:total_won;not null;default:0"`
	TotalDepositedReal       int64     `gorm:"column:total_deposited_real;not null;default:0"`
	TotalWithdrawn           int64     `gorm:"column:total_withdrawn;not null;default:0"`
	TotalBonusGranted        int64     `gorm:"column:total_bonus_granted;not null;default:0"`
	CreatedAt                time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt                time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// ActiveBonus is one bonus-wallet entry. Rows are never deleted, only
// status-transitioned; active→{completed,expired,cancelled} are all terminal.
type ActiveBonus struct {
	BonusID                  string    `gorm:"column:bonus_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID                   string    `gorm:"column:user_id;type:uuid;not null;index"`
	BonusLogID               string    `gorm:"column:bonus_log_id;type:uuid;not null"`
	Status                   string    `gorm:"column:status;type:varchar(20);not null;default:'active'"`
	Priority                 int       `gorm:"column:priority;not null;default:10"`
	CurrentBonusBalance      int64     `gorm:"column:current_bonus_balance;not null;default:0"`
	CurrentWageringRemaining int64     `gorm:"column:current_wagering_remaining;not null;default:0"`
	ExpiresAt                time.Time `gorm:"column:expires_at;not null"`
	CreatedAt                time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt                time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// BonusLog is the immutable record of a bonus grant, one-to-one with the
// ActiveBonus it created.
type BonusLog struct {
	BonusLogID            string    `gorm:"column:bonus_log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID                string    `gorm:"column:user_id;type:uuid;not null;index"`
	DepositLogID          string    `gorm:"column:deposit_log_id;type:uuid;not null"`
	Amount                int64     `gorm:"column:amount;not null"`
	TotalWageringRequired int64     `gorm:"column:total_wagering_required;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;not null;default:now()"`
}

// DepositLog carries a denormalized snapshot of the purchased product so that
// completion never re-reads the mutable catalog.
type DepositLog struct {
	DepositLogID    string          `gorm:"column:deposit_log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID          string          `gorm:"column:user_id;type:uuid;not null;index"`
	OperatorID      string          `gorm:"column:operator_id;type:uuid;not null"`
	Status          string          `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	Amount          int64           `gorm:"column:amount;not null"`
	ProductID       string          `gorm:"column:product_id;type:varchar(100)"`
	ProductName     string          `gorm:"column:product_name;type:varchar(100)"`
	BonusAmount     int64           `gorm:"column:bonus_amount;not null;default:0"`
	BonusMultiplier decimal.Decimal `gorm:"column:bonus_multiplier;type:numeric(10,4);not null;default:0"`
	RealBefore      int64           `gorm:"column:real_before;not null;default:0"`
	RealAfter       int64           `gorm:"column:real_after;not null;default:0"`
	WageringBefore  int64           `gorm:"column:wagering_before;not null;default:0"`
	WageringAfter   int64           `gorm:"column:wagering_after;not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;default:now()"`
	CompletedAt     *time.Time      `gorm:"column:completed_at"`
}

type WithdrawalLog struct {
	WithdrawalLogID string     `gorm:"column:withdrawal_log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID          string     `gorm:"column:user_id;type:uuid;not null;index"`
	OperatorID      string     `gorm:"column:operator_id;type:uuid;not null"`
	Status          string     `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	Amount          int64      `gorm:"column:amount;not null"`
	RealBefore      int64      `gorm:"column:real_before;not null"`
	RealAfter       int64      `gorm:"column:real_after;not null"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;default:now()"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
}

// BetLog is the authoritative, immutable record of one settled bet.
// wager_paid_from_real + wager_paid_from_bonus always equals wager_amount.
type BetLog struct {
	BetLogID           string    `gorm:"column:bet_log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID             string    `gorm:"column:user_id;type:uuid;not null;index"`
	OperatorID         string    `gorm:"column:operator_id;type:uuid;not null"`
	GameID             string    `gorm:"column:game_id;type:varchar(100);not null"`
	GameSessionID      *string   `gorm:"column:game_session_id;type:uuid"` // NULL for session-less bets
	WagerAmount        int64     `gorm:"column:wager_amount;not null"`
	WinAmount          int64     `gorm:"column:win_amount;not null"`
	WagerPaidFromReal  int64     `gorm:"column:wager_paid_from_real;not null"`
	WagerPaidFromBonus int64     `gorm:"column:wager_paid_from_bonus;not null"`
	Status             string    `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;default:now()"`
}

// GameSession holds aggregate counters for one run on one game. Not
// authoritative for balances; BetLog is.
type GameSession struct {
	GameSessionID string    `gorm:"column:game_session_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	UserID        string    `gorm:"column:user_id;type:uuid;not null;index"`
	GameID        string    `gorm:"column:game_id;type:varchar(100);not null"`
	TotalWagered  int64     `gorm:"column:total_wagered;not null;default:0"`
	TotalWon      int64     `gorm:"column:total_won;not null;default:0"`
	TotalBets     int64     `gorm:"column:total_bets;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// Product is the purchasable catalog entry. Kind distinguishes the variants:
// a plain cash top-up or cash plus a wagering-locked bonus.
type Product struct {
	ProductID       string          `gorm:"column:product_id;primaryKey;type:varchar(100)"`
	Name            string          `gorm:"column:name;type:varchar(100);not null"`
	Kind            string          `gorm:"column:kind;type:varchar(20);not null"`
	PriceAmount     int64           `gorm:"column:price_amount;not null"`
	BonusAmount     int64           `gorm:"column:bonus_amount;not null;default:0"`
	BonusMultiplier decimal.Decimal `gorm:"column:bonus_multiplier;type:numeric(10,4);not null;default:0"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;default:now()"`
}

const (
	ProductKindCash      = "cash"
	ProductKindCashBonus = "cash_bonus"
)
