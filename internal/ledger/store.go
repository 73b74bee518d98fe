package ledger

import (
	"context"
	"errors"
)

var (
	ErrOperatorNotFound   = errors.New("operator not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrBalanceNotFound    = errors.New("user balance not found")
	ErrBonusNotFound      = errors.New("bonus not found")
	ErrDepositNotFound    = errors.New("deposit not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrSessionNotFound    = errors.New("game session not found")
	ErrProductNotFound    = errors.New("product not found")
)

// Store is the ledger persistence boundary. ForUpdate getters must take a
// pessimistic row lock when called inside Atomic; the lock is held until the
// surrounding transaction commits or aborts.
type Store interface {
	// Atomic runs fn in one database transaction. Any error from fn rolls
	// the whole transaction back.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	EnsureUser(ctx context.Context, userID, operatorID string) error

	GetOperatorForUpdate(ctx context.Context, operatorID string) (*Operator, error)
	SaveOperator(ctx context.Context, op *Operator) error
	IsGameDisabled(ctx context.Context, operatorID, gameID string) (bool, error)
	SetGameDisabled(ctx context.Context, operatorID, gameID string, disabled bool) error

	GetUserBalance(ctx context.Context, userID string) (*UserBalance, error)
	GetUserBalanceForUpdate(ctx context.Context, userID string) (*UserBalance, error)
	SaveUserBalance(ctx context.Context, bal *UserBalance) error

	// GetActiveBonusesForUpdate returns the user's ACTIVE bonuses ordered by
	// priority ascending, creation time ascending.
	GetActiveBonusesForUpdate(ctx context.Context, userID string) ([]*ActiveBonus, error)
	GetActiveBonuses(ctx context.Context, userID string) ([]*ActiveBonus, error)
	SaveBonus(ctx context.Context, b *ActiveBonus) error
	CreateBonus(ctx context.Context, b *ActiveBonus) error
	CreateBonusLog(ctx context.Context, bl *BonusLog) error

	CreateDeposit(ctx context.Context, d *DepositLog) error
	GetDepositForUpdate(ctx context.Context, depositID string) (*DepositLog, error)
	SaveDeposit(ctx context.Context, d *DepositLog) error

	CreateWithdrawal(ctx context.Context, w *WithdrawalLog) error

	CreateBetLog(ctx context.Context, b *BetLog) error

	CreateGameSession(ctx context.Context, s *GameSession) error
	GetGameSessionForUpdate(ctx context.Context, sessionID string) (*GameSession, error)
	SaveGameSession(ctx context.Context, s *GameSession) error

	GetProduct(ctx context.Context, productID string) (*Product, error)
}
