// Package bonus owns the administrative side of the bonus-wallet state
// machine: expiry sweeps and cancellation. Completion lives in settlement,
// where it happens inside the bet transaction. All transitions out of ACTIVE
// are terminal.
package bonus

import (
	"context"
	"log"
	"time"

	"pam_service/internal/ledger"
)

type Service struct {
	store ledger.Store
	now   func() time.Time
}

func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SweepExpired transitions a user's ACTIVE bonuses past their expiry to
// EXPIRED, forfeiting any remaining balance. Returns the number of bonuses
// expired. Settlement performs the same check opportunistically; this is the
// standalone entry point for scans.
func (s *Service) SweepExpired(ctx context.Context, userID string) (int, error) {
	expired := 0
	err := s.store.Atomic(ctx, func(tx ledger.Store) error {
		bonuses, err := tx.GetActiveBonusesForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		now := s.now()
		for _, b := range bonuses {
			if !now.After(b.ExpiresAt) {
				continue
			}
			b.Status = ledger.BonusStatusExpired
			b.CurrentBonusBalance = 0
			if err := tx.SaveBonus(ctx, b); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Printf("bonus sweep: user=%s expired=%d", userID, expired)
	}
	return expired, nil
}

// CancelUserBonuses cancels every ACTIVE bonus of a user, forfeiting
// remaining balances with no conversion. Administrative action, used e.g.
// on an operator switch.
func (s *Service) CancelUserBonuses(ctx context.Context, userID string) (int, error) {
	cancelled := 0
	err := s.store.Atomic(ctx, func(tx ledger.Store) error {
		bonuses, err := tx.GetActiveBonusesForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		for _, b := range bonuses {
			b.Status = ledger.BonusStatusCancelled
			b.CurrentBonusBalance = 0
			if err := tx.SaveBonus(ctx, b); err != nil {
				return err
			}
			cancelled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		log.Printf("bonuses cancelled: user=%s count=%d", userID, cancelled)
	}
	return cancelled, nil
}
