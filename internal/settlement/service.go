package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"pam_service/internal/cache"
	"pam_service/internal/ledger"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrGameDisabled      = errors.New("game is disabled for this operator")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type Service struct {
	store ledger.Store
	cache *cache.Cache
	now   func() time.Time
}

func NewService(store ledger.Store, c *cache.Cache) *Service {
	return &Service{
		store: store,
		cache: c,
		now:   time.Now,
	}
}

// SettleBet settles one bet outcome in a single transaction: expire due
// bonuses, fund the wager from real then bonus balances in priority order,
// clear wagering requirements with the full wager amount, complete bonuses
// whose requirement hit zero (converting remaining balance to real), credit
// the win, and move the operator counter-ledger by wager-win.
//
// NSF is a normal outcome and leaves every row untouched. A missing balance
// or operator row is an invariant violation and surfaces as an internal
// error.
func (s *Service) SettleBet(ctx context.Context, req SettleRequest) (*BalanceSnapshot, error) {
	if req.WagerAmount < 0 || req.WinAmount < 0 {
		return nil, ErrInvalidAmount
	}
	if req.UserID == "" || req.OperatorID == "" || req.GameID == "" {
		return nil, fmt.Errorf("settle bet: missing identifiers")
	}

	disabled, err := s.store.IsGameDisabled(ctx, req.OperatorID, req.GameID)
	if err != nil {
		return nil, err
	}
	if disabled {
		return nil, ErrGameDisabled
	}

	var snap *BalanceSnapshot
	err = s.store.Atomic(ctx, func(tx ledger.Store) error {
		bal, err := tx.GetUserBalanceForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		bonuses, err := tx.GetActiveBonusesForUpdate(ctx, req.UserID)
		if err != nil {
			return err
		}
		op, err := tx.GetOperatorForUpdate(ctx, req.OperatorID)
		if err != nil {
			return err
		}
		var sess *ledger.GameSession
		if req.GameSessionID != "" {
			sess, err = tx.GetGameSessionForUpdate(ctx, req.GameSessionID)
			if err != nil {
				return err
			}
		}

		now := s.now()
		active := make([]*ledger.ActiveBonus, 0, len(bonuses))
		for _, b := range bonuses {
			if now.After(b.ExpiresAt) {
				b.Status = ledger.BonusStatusExpired
				b.CurrentBonusBalance = 0 // forfeited, not converted
				if err := tx.SaveBonus(ctx, b); err != nil {
					return err
				}
				log.Printf("bonus expired: bonus_id=%s user=%s", b.BonusID, req.UserID)
				continue
			}
			active = append(active, b)
		}

		available := bal.RealBalance
		for _, b := range active {
			available += b.CurrentBonusBalance
		}
		if available < req.WagerAmount {
			return ErrInsufficientFunds
		}

		// payment waterfall: real first, then bonuses by priority
		fromReal := min64(bal.RealBalance, req.WagerAmount)
		bal.RealBalance -= fromReal
		remaining := req.WagerAmount - fromReal
		for _, b := range active {
			if remaining == 0 {
				break
			}
			draw := min64(b.CurrentBonusBalance, remaining)
			b.CurrentBonusBalance -= draw
			remaining -= draw
		}
		fromBonus := req.WagerAmount - fromReal

		// wagering clearance: real spend clears the deposit requirement,
		// and the entire wager counts toward every active bonus
		if fromReal > 0 {
			bal.DepositWageringRemaining -= min64(bal.DepositWageringRemaining, fromReal)
		}
		for _, b := range active {
			b.CurrentWageringRemaining -= min64(b.CurrentWageringRemaining, req.WagerAmount)
		}

		bonusCompleted := false
		for _, b := range active {
			if b.CurrentWageringRemaining == 0 {
				b.Status = ledger.BonusStatusCompleted
				bal.RealBalance += b.CurrentBonusBalance
				b.CurrentBonusBalance = 0
				bonusCompleted = true
			}
		}

		bal.RealBalance += req.WinAmount
		bal.TotalWagered += req.WagerAmount
		bal.TotalWon += req.WinAmount

		net := req.WagerAmount - req.WinAmount
		op.Balance += net
		if req.GameCategory == ledger.GameCategoryArcade {
			op.ArcadeBalance += net
		} else {
			op.SlotsBalance += net
		}

		if err := tx.SaveUserBalance(ctx, bal); err != nil {
			return err
		}
		for _, b := range active {
			if err := tx.SaveBonus(ctx, b); err != nil {
				return err
			}
		}
		if err := tx.SaveOperator(ctx, op); err != nil {
			return err
		}

		betLog := &ledger.BetLog{
			BetLogID:           uuid.NewString(),
			UserID:             req.UserID,
			OperatorID:         req.OperatorID,
			GameID:             req.GameID,
			WagerAmount:        req.WagerAmount,
			WinAmount:          req.WinAmount,
			WagerPaidFromReal:  fromReal,
			WagerPaidFromBonus: fromBonus,
			Status:             ledger.BetStatusSettled,
			CreatedAt:          now,
		}
		if req.GameSessionID != "" {
			sessionID := req.GameSessionID
			betLog.GameSessionID = &sessionID
		}
		if err := tx.CreateBetLog(ctx, betLog); err != nil {
			return err
		}

		if sess != nil {
			sess.TotalWagered += req.WagerAmount
			sess.TotalWon += req.WinAmount
			sess.TotalBets++
			if err := tx.SaveGameSession(ctx, sess); err != nil {
				return err
			}
		}

		bonusBalance := int64(0)
		for _, b := range active {
			if b.Status == ledger.BonusStatusActive {
				bonusBalance += b.CurrentBonusBalance
			}
		}
		snap = &BalanceSnapshot{
			RealBalance:    bal.RealBalance,
			BonusBalance:   bonusBalance,
			TotalBalance:   bal.RealBalance + bonusBalance,
			WinAmount:      req.WinAmount,
			BonusCompleted: bonusCompleted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// post-commit, best-effort: failures logged, never retried
	if err := s.cache.InvalidateUserState(ctx, req.UserID); err != nil {
		log.Printf("cache invalidation failed: user=%s %v", req.UserID, err)
	}
	if err := s.cache.RecordBet(ctx, req.GameID, req.WagerAmount, req.WinAmount); err != nil {
		log.Printf("game stats update failed: game=%s %v", req.GameID, err)
	}

	return snap, nil
}

// Balance reads the current state without locks: real balance plus the sum
// of spendable ACTIVE bonus balances.
func (s *Service) Balance(ctx context.Context, userID string) (*BalanceSnapshot, error) {
	bal, err := s.store.GetUserBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	bonuses, err := s.store.GetActiveBonuses(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	bonusBalance := int64(0)
	for _, b := range bonuses {
		if now.After(b.ExpiresAt) {
			// due for forfeiture on the next settlement or sweep
			continue
		}
		bonusBalance += b.CurrentBonusBalance
	}
	return &BalanceSnapshot{
		RealBalance:  bal.RealBalance,
		BonusBalance: bonusBalance,
		TotalBalance: bal.RealBalance + bonusBalance,
	}, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
