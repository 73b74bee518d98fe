// Package withdrawal gates and records withdrawal requests. Funds are only
// withdrawable once both the deposit wagering requirement and every active
// bonus wagering requirement sit at zero.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pam_service/internal/ledger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWageringNotMet    = errors.New("wagering requirement not met")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type Service struct {
	store ledger.Store
	now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// RequestWithdrawal debits the user and credits the operator, inserting a
// PENDING withdrawal for the downstream payout process. The gate is checked
// cheaply up front, then re-checked against locked rows inside the
// transaction; a failed gate mutates nothing.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, operatorID string, amount int64) (*ledger.WithdrawalLog, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if userID == "" || operatorID == "" {
		return nil, fmt.Errorf("request withdrawal: missing identifiers")
	}

	bal, err := s.store.GetUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	bonuses, err := s.store.GetActiveBonuses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := checkGate(bal, bonuses, amount); err != nil {
		return nil, err
	}

	var wl *ledger.WithdrawalLog
	err = s.store.Atomic(ctx, func(tx ledger.Store) error {
		bal, err := tx.GetUserBalanceForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		bonuses, err := tx.GetActiveBonusesForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if err := checkGate(bal, bonuses, amount); err != nil {
			return err
		}
		op, err := tx.GetOperatorForUpdate(ctx, operatorID)
		if err != nil {
			return err
		}

		before := bal.RealBalance
		bal.RealBalance -= amount
		bal.TotalWithdrawn += amount
		op.Balance += amount

		wl = &ledger.WithdrawalLog{
			WithdrawalLogID: uuid.NewString(),
			UserID:          userID,
			OperatorID:      operatorID,
			Status:          ledger.WithdrawalStatusPending,
			Amount:          amount,
			RealBefore:      before,
			RealAfter:       bal.RealBalance,
			CreatedAt:       s.now(),
		}
		if err := tx.SaveUserBalance(ctx, bal); err != nil {
			return err
		}
		if err := tx.SaveOperator(ctx, op); err != nil {
			return err
		}
		return tx.CreateWithdrawal(ctx, wl)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("withdrawal requested: withdrawal_id=%s user=%s amount=%d",
		wl.WithdrawalLogID, userID, amount)
	return wl, nil
}

// checkGate reports the specific unmet condition: insufficient real balance,
// or outstanding wagering on the deposit side or any active bonus.
func checkGate(bal *ledger.UserBalance, bonuses []*ledger.ActiveBonus, amount int64) error {
	if bal.RealBalance < amount {
		return ErrInsufficientFunds
	}
	unmet := bal.DepositWageringRemaining
	for _, b := range bonuses {
		unmet += b.CurrentWageringRemaining
	}
	if unmet > 0 {
		return fmt.Errorf("%w: %d remaining", ErrWageringNotMet, unmet)
	}
	return nil
}
