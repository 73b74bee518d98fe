package bonus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pam_service/internal/ledger"
	"pam_service/internal/ledger/ledgertest"
)

func setupBonus(t *testing.T) (*ledgertest.Store, *Service, string) {
	t.Helper()
	store := ledgertest.NewStore()
	operatorID := uuid.NewString()
	store.SeedOperator(&ledger.Operator{OperatorID: operatorID, Name: "test"})

	userID := uuid.NewString()
	require.NoError(t, store.EnsureUser(context.Background(), userID, operatorID))

	return store, NewService(store), userID
}

func seedBonus(t *testing.T, store *ledgertest.Store, userID string, balance int64, expiresAt time.Time) string {
	t.Helper()
	b := &ledger.ActiveBonus{
		BonusID:                  uuid.NewString(),
		UserID:                   userID,
		BonusLogID:               uuid.NewString(),
		Status:                   ledger.BonusStatusActive,
		Priority:                 10,
		CurrentBonusBalance:      balance,
		CurrentWageringRemaining: 100,
		ExpiresAt:                expiresAt,
	}
	require.NoError(t, store.CreateBonus(context.Background(), b))
	return b.BonusID
}

func TestSweepExpiredForfeitsOnlyOverdue(t *testing.T) {
	store, svc, userID := setupBonus(t)
	overdue := seedBonus(t, store, userID, 300, time.Now().Add(-time.Hour))
	live := seedBonus(t, store, userID, 200, time.Now().Add(24*time.Hour))

	expired, err := svc.SweepExpired(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	b := store.Bonus(overdue)
	assert.Equal(t, ledger.BonusStatusExpired, b.Status)
	assert.Equal(t, int64(0), b.CurrentBonusBalance)

	// forfeited, nothing converted to real
	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.RealBalance)

	assert.Equal(t, ledger.BonusStatusActive, store.Bonus(live).Status)
}

func TestSweepExpiredNothingDue(t *testing.T) {
	store, svc, userID := setupBonus(t)
	seedBonus(t, store, userID, 300, time.Now().Add(24*time.Hour))

	expired, err := svc.SweepExpired(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)
}

func TestCancelUserBonuses(t *testing.T) {
	store, svc, userID := setupBonus(t)
	first := seedBonus(t, store, userID, 300, time.Now().Add(24*time.Hour))
	second := seedBonus(t, store, userID, 200, time.Now().Add(24*time.Hour))

	cancelled, err := svc.CancelUserBonuses(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	for _, id := range []string{first, second} {
		b := store.Bonus(id)
		assert.Equal(t, ledger.BonusStatusCancelled, b.Status)
		assert.Equal(t, int64(0), b.CurrentBonusBalance)
	}

	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.RealBalance)
}
