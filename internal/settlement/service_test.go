package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pam_service/internal/cache"
	"pam_service/internal/ledger"
	"pam_service/internal/ledger/ledgertest"
)

func setupSettlement(t *testing.T) (*ledgertest.Store, *Service, string, string) {
	t.Helper()
	store := ledgertest.NewStore()
	operatorID := uuid.NewString()
	store.SeedOperator(&ledger.Operator{OperatorID: operatorID, Name: "test"})

	userID := uuid.NewString()
	require.NoError(t, store.EnsureUser(context.Background(), userID, operatorID))

	svc := NewService(store, cache.New("", "", 0))
	return store, svc, userID, operatorID
}

func setRealBalance(t *testing.T, store *ledgertest.Store, userID string, amount int64) {
	t.Helper()
	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	bal.RealBalance = amount
	require.NoError(t, store.SaveUserBalance(context.Background(), bal))
}

func addBonus(t *testing.T, store *ledgertest.Store, userID string, balance, wagering int64, priority int) string {
	t.Helper()
	b := &ledger.ActiveBonus{
		BonusID:                  uuid.NewString(),
		UserID:                   userID,
		BonusLogID:               uuid.NewString(),
		Status:                   ledger.BonusStatusActive,
		Priority:                 priority,
		CurrentBonusBalance:      balance,
		CurrentWageringRemaining: wagering,
		ExpiresAt:                time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, store.CreateBonus(context.Background(), b))
	return b.BonusID
}

func TestSettleBetRealOnly(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 1000)

	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 200, WinAmount: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(800), snap.RealBalance)
	assert.Equal(t, int64(0), snap.BonusBalance)
	assert.False(t, snap.BonusCompleted)

	bets := store.BetLogs(userID)
	require.Len(t, bets, 1)
	assert.Equal(t, int64(200), bets[0].WagerPaidFromReal)
	assert.Equal(t, int64(0), bets[0].WagerPaidFromBonus)
}

func TestSettleBetBonusCompletionConvertsBalance(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	bonusID := addBonus(t, store, userID, 500, 50, 10)

	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 50, WinAmount: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(450), snap.RealBalance)
	assert.Equal(t, int64(0), snap.BonusBalance)
	assert.True(t, snap.BonusCompleted)

	b := store.Bonus(bonusID)
	assert.Equal(t, ledger.BonusStatusCompleted, b.Status)
	assert.Equal(t, int64(0), b.CurrentBonusBalance)
	assert.Equal(t, int64(0), b.CurrentWageringRemaining)
}

func TestSettleBetEmptyActiveBonusCompletes(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 100)
	bonusID := addBonus(t, store, userID, 0, 0, 10)

	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 50, WinAmount: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50), snap.RealBalance)
	assert.True(t, snap.BonusCompleted)

	bets := store.BetLogs(userID)
	require.Len(t, bets, 1)
	assert.Equal(t, int64(0), bets[0].WagerPaidFromBonus)
	assert.Equal(t, ledger.BonusStatusCompleted, store.Bonus(bonusID).Status)
}

func TestSettleBetInsufficientFundsMutatesNothing(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 10)

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 50, WinAmount: 0,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal.RealBalance)
	assert.Empty(t, store.BetLogs(userID))
	assert.Equal(t, int64(0), store.Operator(operatorID).Balance)
}

func TestSettleBetWaterfallAcrossBonuses(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 100)
	first := addBonus(t, store, userID, 60, 1000, 1)
	second := addBonus(t, store, userID, 80, 1000, 5)

	// wager 200: 100 real, 60 from priority 1, 40 from priority 5
	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 200, WinAmount: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.RealBalance)
	assert.Equal(t, int64(40), snap.BonusBalance)

	bets := store.BetLogs(userID)
	require.Len(t, bets, 1)
	assert.Equal(t, int64(100), bets[0].WagerPaidFromReal)
	assert.Equal(t, int64(100), bets[0].WagerPaidFromBonus)
	assert.Equal(t, bets[0].WagerAmount, bets[0].WagerPaidFromReal+bets[0].WagerPaidFromBonus)

	assert.Equal(t, int64(0), store.Bonus(first).CurrentBonusBalance)
	assert.Equal(t, int64(40), store.Bonus(second).CurrentBonusBalance)
}

func TestSettleBetFullWagerClearsEveryActiveBonus(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 500)
	first := addBonus(t, store, userID, 100, 300, 1)
	second := addBonus(t, store, userID, 100, 80, 5)

	// paid fully from real, yet the whole 200 counts against both bonuses
	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 200, WinAmount: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), store.Bonus(first).CurrentWageringRemaining)
	b2 := store.Bonus(second)
	assert.Equal(t, ledger.BonusStatusCompleted, b2.Status)
	assert.Equal(t, int64(0), b2.CurrentWageringRemaining)
}

func TestSettleBetDepositWageringClearedByRealSpendOnly(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	bal.RealBalance = 30
	bal.DepositWageringRemaining = 100
	require.NoError(t, store.SaveUserBalance(context.Background(), bal))
	addBonus(t, store, userID, 500, 1000, 10)

	// wager 80: 30 from real, 50 from bonus; deposit WR drops by the 30 real
	_, err = svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 80, WinAmount: 0,
	})
	require.NoError(t, err)

	bal, err = store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal.DepositWageringRemaining)
}

func TestSettleBetOperatorCounterEntry(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 1000)

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		GameCategory: ledger.GameCategorySlots, WagerAmount: 200, WinAmount: 50,
	})
	require.NoError(t, err)

	op := store.Operator(operatorID)
	assert.Equal(t, int64(150), op.Balance)
	assert.Equal(t, int64(150), op.SlotsBalance)
	assert.Equal(t, int64(0), op.ArcadeBalance)

	_, err = svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "pacman",
		GameCategory: ledger.GameCategoryArcade, WagerAmount: 100, WinAmount: 300,
	})
	require.NoError(t, err)

	op = store.Operator(operatorID)
	assert.Equal(t, int64(-50), op.Balance)
	assert.Equal(t, int64(-200), op.ArcadeBalance)
}

func TestSettleBetUpdatesSessionAggregates(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 1000)

	sessionID := uuid.NewString()
	require.NoError(t, store.CreateGameSession(context.Background(), &ledger.GameSession{
		GameSessionID: sessionID, UserID: userID, GameID: "starburst",
	}))

	for i := 0; i < 3; i++ {
		_, err := svc.SettleBet(context.Background(), SettleRequest{
			UserID: userID, OperatorID: operatorID, GameID: "starburst",
			GameSessionID: sessionID, WagerAmount: 100, WinAmount: 40,
		})
		require.NoError(t, err)
	}

	sess := store.Session(sessionID)
	assert.Equal(t, int64(300), sess.TotalWagered)
	assert.Equal(t, int64(120), sess.TotalWon)
	assert.Equal(t, int64(3), sess.TotalBets)
}

func TestSettleBetExpiresDueBonusesFirst(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 100)
	bonusID := addBonus(t, store, userID, 500, 50, 10)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	// bonus is past expiry: its 500 is forfeited, not spendable
	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 200, WinAmount: 0,
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// the NSF abort rolled the expiry back too; a fundable bet applies it
	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 100, WinAmount: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.RealBalance)
	assert.Equal(t, int64(0), snap.BonusBalance)

	b := store.Bonus(bonusID)
	assert.Equal(t, ledger.BonusStatusExpired, b.Status)
	assert.Equal(t, int64(0), b.CurrentBonusBalance)
}

func TestSettleBetDisabledGame(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 1000)
	require.NoError(t, store.SetGameDisabled(context.Background(), operatorID, "starburst", true))

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 100, WinAmount: 0,
	})
	require.ErrorIs(t, err, ErrGameDisabled)

	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.RealBalance)
}

func TestSettleBetValidation(t *testing.T) {
	_, svc, userID, operatorID := setupSettlement(t)

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: -1, WinAmount: 0,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettleBetMissingBalanceRowIsInternal(t *testing.T) {
	_, svc, _, operatorID := setupSettlement(t)

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: uuid.NewString(), OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 10, WinAmount: 0,
	})
	require.ErrorIs(t, err, ledger.ErrBalanceNotFound)
}

func TestConcurrentSettlementsNoDoubleSpend(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	nsfCount := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SettleBet(context.Background(), SettleRequest{
				UserID: userID, OperatorID: operatorID, GameID: "starburst",
				WagerAmount: 10, WinAmount: 0,
			})
			mu.Lock()
			if err == nil {
				successCount++
			} else {
				nsfCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 5, successCount, "successCount")
	require.Equal(t, 5, nsfCount, "nsfCount")

	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.RealBalance)
	require.Equal(t, int64(50), store.Operator(operatorID).Balance)
}

func TestConcurrentSettlementsOperatorReconciles(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 10000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.SettleBet(context.Background(), SettleRequest{
				UserID: userID, OperatorID: operatorID, GameID: "starburst",
				WagerAmount: 10, WinAmount: 0,
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.SettleBet(context.Background(), SettleRequest{
				UserID: userID, OperatorID: operatorID, GameID: "starburst",
				WagerAmount: 0, WinAmount: 10,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 50 wagers of 10 against 50 wins of 10: operator nets zero and the
	// user is back where they started
	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, int64(10000), bal.RealBalance)
	require.Equal(t, int64(0), store.Operator(operatorID).Balance)

	bets := store.BetLogs(userID)
	require.Len(t, bets, 100)
	for _, b := range bets {
		assert.Equal(t, b.WagerAmount, b.WagerPaidFromReal+b.WagerPaidFromBonus)
	}
}

func TestSettleBetWithoutSessionRecordsNoSessionID(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 1000)

	_, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 100, WinAmount: 0,
	})
	require.NoError(t, err)

	bets := store.BetLogs(userID)
	require.Len(t, bets, 1)
	assert.Nil(t, bets[0].GameSessionID)

	sessionID := uuid.NewString()
	require.NoError(t, store.CreateGameSession(context.Background(), &ledger.GameSession{
		GameSessionID: sessionID, UserID: userID, GameID: "starburst",
	}))
	_, err = svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		GameSessionID: sessionID, WagerAmount: 100, WinAmount: 0,
	})
	require.NoError(t, err)

	bets = store.BetLogs(userID)
	require.Len(t, bets, 2)
	require.NotNil(t, bets[1].GameSessionID)
	assert.Equal(t, sessionID, *bets[1].GameSessionID)
}

func TestBalanceExcludesExpiredBonuses(t *testing.T) {
	store, svc, userID, _ := setupSettlement(t)
	setRealBalance(t, store, userID, 100)
	addBonus(t, store, userID, 500, 50, 10)

	snap, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), snap.BonusBalance)
	assert.Equal(t, int64(600), snap.TotalBalance)

	// past expiry but not yet swept: the 500 is no longer spendable
	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	snap, err = svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.BonusBalance)
	assert.Equal(t, int64(100), snap.TotalBalance)
}

func TestSettleBetWinCreditsReal(t *testing.T) {
	store, svc, userID, operatorID := setupSettlement(t)
	setRealBalance(t, store, userID, 100)

	snap, err := svc.SettleBet(context.Background(), SettleRequest{
		UserID: userID, OperatorID: operatorID, GameID: "starburst",
		WagerAmount: 100, WinAmount: 250,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(250), snap.RealBalance)

	bal, err := store.GetUserBalance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal.TotalWagered)
	assert.Equal(t, int64(250), bal.TotalWon)
}
