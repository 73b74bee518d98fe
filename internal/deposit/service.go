// Package deposit promotes PENDING deposits to COMPLETED, applies the AML
// wagering requirement, and grants the bonus attached to the purchased
// product, all in one transaction.
package deposit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pam_service/internal/ledger"
)

var (
	ErrNotPending    = errors.New("deposit is not pending")
	ErrInvalidAmount = errors.New("invalid amount")
)

// AMLWageringMultiplier is applied to the deposit amount to produce the
// deposit wagering requirement.
var AMLWageringMultiplier = decimal.NewFromInt(1)

const (
	DefaultBonusPriority = 10
	DefaultBonusExpiry   = 30 * 24 * time.Hour
)

type InitiateRequest struct {
	UserID     string `json:"user_id"`
	OperatorID string `json:"operator_id"`
	ProductID  string `json:"product_id"`
	Amount     int64  `json:"amount"`
}

type Service struct {
	store ledger.Store
	now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// InitiateDeposit records a PENDING deposit. When a product id is given, the
// product is snapshotted into the deposit row so completion never re-reads
// the mutable catalog; otherwise a plain cash deposit of Amount is recorded.
func (s *Service) InitiateDeposit(ctx context.Context, req InitiateRequest) (*ledger.DepositLog, error) {
	if req.UserID == "" || req.OperatorID == "" {
		return nil, fmt.Errorf("initiate deposit: missing identifiers")
	}

	dep := &ledger.DepositLog{
		DepositLogID: uuid.NewString(),
		UserID:       req.UserID,
		OperatorID:   req.OperatorID,
		Status:       ledger.DepositStatusPending,
		CreatedAt:    s.now(),
	}

	if req.ProductID != "" {
		product, err := s.store.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		dep.Amount = product.PriceAmount
		dep.ProductID = product.ProductID
		dep.ProductName = product.Name
		if product.Kind == ledger.ProductKindCashBonus {
			dep.BonusAmount = product.BonusAmount
			dep.BonusMultiplier = product.BonusMultiplier
		}
	} else {
		if req.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		dep.Amount = req.Amount
	}

	if err := s.store.CreateDeposit(ctx, dep); err != nil {
		return nil, err
	}
	log.Printf("deposit initiated: deposit_id=%s user=%s amount=%d product=%s",
		dep.DepositLogID, dep.UserID, dep.Amount, dep.ProductID)
	return dep, nil
}

// CompleteDeposit promotes a PENDING deposit: credits the real balance, adds
// the AML wagering requirement, grants the snapshotted bonus if any, and
// debits the operator. The PENDING check under the row lock doubles as the
// idempotency guard: a second call on the same id fails with ErrNotPending.
func (s *Service) CompleteDeposit(ctx context.Context, depositID string) (*ledger.DepositLog, error) {
	var dep *ledger.DepositLog
	err := s.store.Atomic(ctx, func(tx ledger.Store) error {
		var err error
		dep, err = tx.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if dep.Status != ledger.DepositStatusPending {
			return ErrNotPending
		}

		bal, err := tx.GetUserBalanceForUpdate(ctx, dep.UserID)
		if err != nil {
			return err
		}
		op, err := tx.GetOperatorForUpdate(ctx, dep.OperatorID)
		if err != nil {
			return err
		}

		amlRequirement := decimal.NewFromInt(dep.Amount).Mul(AMLWageringMultiplier).IntPart()

		dep.RealBefore = bal.RealBalance
		dep.WageringBefore = bal.DepositWageringRemaining

		bal.RealBalance += dep.Amount
		bal.DepositWageringRemaining += amlRequirement
		bal.TotalDepositedReal += dep.Amount

		now := s.now()
		if dep.BonusAmount > 0 {
			totalWagering := decimal.NewFromInt(dep.BonusAmount).Mul(dep.BonusMultiplier).IntPart()
			bonusLog := &ledger.BonusLog{
				BonusLogID:            uuid.NewString(),
				UserID:                dep.UserID,
				DepositLogID:          dep.DepositLogID,
				Amount:                dep.BonusAmount,
				TotalWageringRequired: totalWagering,
				CreatedAt:             now,
			}
			if err := tx.CreateBonusLog(ctx, bonusLog); err != nil {
				return err
			}
			bonus := &ledger.ActiveBonus{
				BonusID:                  uuid.NewString(),
				UserID:                   dep.UserID,
				BonusLogID:               bonusLog.BonusLogID,
				Status:                   ledger.BonusStatusActive,
				Priority:                 DefaultBonusPriority,
				CurrentBonusBalance:      dep.BonusAmount,
				CurrentWageringRemaining: totalWagering,
				ExpiresAt:                now.Add(DefaultBonusExpiry),
				CreatedAt:                now,
			}
			if err := tx.CreateBonus(ctx, bonus); err != nil {
				return err
			}
			bal.TotalBonusGranted += dep.BonusAmount
		}

		op.Balance -= dep.Amount

		dep.RealAfter = bal.RealBalance
		dep.WageringAfter = bal.DepositWageringRemaining
		dep.Status = ledger.DepositStatusCompleted
		dep.CompletedAt = &now

		if err := tx.SaveUserBalance(ctx, bal); err != nil {
			return err
		}
		if err := tx.SaveOperator(ctx, op); err != nil {
			return err
		}
		return tx.SaveDeposit(ctx, dep)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("deposit completed: deposit_id=%s user=%s amount=%d bonus=%d",
		dep.DepositLogID, dep.UserID, dep.Amount, dep.BonusAmount)
	return dep, nil
}
