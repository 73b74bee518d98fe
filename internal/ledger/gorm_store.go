package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the ledger schema.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(
		&Operator{}, &OperatorGameSetting{}, &User{}, &UserBalance{},
		&ActiveBonus{}, &BonusLog{}, &DepositLog{}, &WithdrawalLog{},
		&BetLog{}, &GameSession{}, &Product{},
	)
}

func (s *GormStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return fn(&GormStore{db: dbtx})
	})
}

func (s *GormStore) EnsureUser(ctx context.Context, userID, operatorID string) error {
	return s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		// OnConflict DoNothing keeps concurrent first-authentications of
		// the same user from racing on the unique key
		user := User{UserID: userID, OperatorID: operatorID}
		if err := dbtx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
			return fmt.Errorf("failed to ensure user: %w", err)
		}
		bal := UserBalance{UserID: userID}
		if err := dbtx.Clauses(clause.OnConflict{DoNothing: true}).Create(&bal).Error; err != nil {
			return fmt.Errorf("failed to ensure user balance: %w", err)
		}
		return nil
	})
}

// EnsureOperator creates the bootstrap operator row if it does not exist.
func (s *GormStore) EnsureOperator(ctx context.Context, operatorID, name string) error {
	op := Operator{OperatorID: operatorID, Name: name}
	if err := s.db.WithContext(ctx).Where("operator_id = ?", operatorID).FirstOrCreate(&op).Error; err != nil {
		return fmt.Errorf("failed to ensure operator: %w", err)
	}
	return nil
}

func (s *GormStore) GetOperatorForUpdate(ctx context.Context, operatorID string) (*Operator, error) {
	var op Operator
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("operator_id = ?", operatorID).
		First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOperatorNotFound
		}
		return nil, fmt.Errorf("failed to lock operator: %w", err)
	}
	return &op, nil
}

func (s *GormStore) SaveOperator(ctx context.Context, op *Operator) error {
	result := s.db.WithContext(ctx).
		Model(&Operator{}).
		Where("operator_id = ?", op.OperatorID).
		Updates(map[string]interface{}{
			"balance":        op.Balance,
			"slots_balance":  op.SlotsBalance,
			"arcade_balance": op.ArcadeBalance,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save operator: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOperatorNotFound
	}
	return nil
}

func (s *GormStore) IsGameDisabled(ctx context.Context, operatorID, gameID string) (bool, error) {
	var disabled bool
	err := s.db.WithContext(ctx).
		Model(&OperatorGameSetting{}).
		Select("count(*) > 0").
		Where("operator_id = ? AND game_id = ? AND disabled = true", operatorID, gameID).
		Scan(&disabled).Error
	if err != nil {
		return false, fmt.Errorf("failed to check game setting: %w", err)
	}
	return disabled, nil
}

func (s *GormStore) SetGameDisabled(ctx context.Context, operatorID, gameID string, disabled bool) error {
	setting := OperatorGameSetting{OperatorID: operatorID, GameID: gameID, Disabled: disabled}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "operator_id"}, {Name: "game_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"disabled"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to set game setting: %w", err)
	}
	return nil
}

func (s *GormStore) GetUserBalance(ctx context.Context, userID string) (*UserBalance, error) {
	return s.getUserBalance(ctx, userID, false)
}

func (s *GormStore) GetUserBalanceForUpdate(ctx context.Context, userID string) (*UserBalance, error) {
	return s.getUserBalance(ctx, userID, true)
}

func (s *GormStore) getUserBalance(ctx context.Context, userID string, forUpdate bool) (*UserBalance, error) {
	var bal UserBalance
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("user_id = ?", userID).First(&bal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get user balance: %w", err)
	}
	return &bal, nil
}

func (s *GormStore) SaveUserBalance(ctx context.Context, bal *UserBalance) error {
	result := s.db.WithContext(ctx).
		Model(&UserBalance{}).
		Where("user_id = ?", bal.UserID).
		Updates(map[string]interface{}{
			"real_balance":         bal.RealBalance,
			"deposit_wr_remaining": bal.DepositWageringRemaining,
			"total_wagered":        bal.TotalWagered,
			"total_won":            bal.TotalWon,
			"total_deposited_real": bal.TotalDepositedReal,
			"total_withdrawn":      bal.TotalWithdrawn,
			"total_bonus_granted":  bal.TotalBonusGranted,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save user balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}
	return nil
}

func (s *GormStore) GetActiveBonusesForUpdate(ctx context.Context, userID string) ([]*ActiveBonus, error) {
	return s.getActiveBonuses(ctx, userID, true)
}

func (s *GormStore) GetActiveBonuses(ctx context.Context, userID string) ([]*ActiveBonus, error) {
	return s.getActiveBonuses(ctx, userID, false)
}

func (s *GormStore) getActiveBonuses(ctx context.Context, userID string, forUpdate bool) ([]*ActiveBonus, error) {
	var bonuses []*ActiveBonus
	q := s.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("user_id = ? AND status = ?", userID, BonusStatusActive).
		Order("priority ASC, created_at ASC").
		Find(&bonuses).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active bonuses: %w", err)
	}
	return bonuses, nil
}

func (s *GormStore) SaveBonus(ctx context.Context, b *ActiveBonus) error {
	result := s.db.WithContext(ctx).
		Model(&ActiveBonus{}).
		Where("bonus_id = ?", b.BonusID).
		Updates(map[string]interface{}{
			"status":                     b.Status,
			"current_bonus_balance":      b.CurrentBonusBalance,
			"current_wagering_remaining": b.CurrentWageringRemaining,
			"updated_at":                 time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save bonus: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBonusNotFound
	}
	return nil
}

func (s *GormStore) CreateBonus(ctx context.Context, b *ActiveBonus) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create bonus: %w", err)
	}
	return nil
}

func (s *GormStore) CreateBonusLog(ctx context.Context, bl *BonusLog) error {
	if err := s.db.WithContext(ctx).Create(bl).Error; err != nil {
		return fmt.Errorf("failed to create bonus log: %w", err)
	}
	return nil
}

func (s *GormStore) CreateDeposit(ctx context.Context, d *DepositLog) error {
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

func (s *GormStore) GetDepositForUpdate(ctx context.Context, depositID string) (*DepositLog, error) {
	var d DepositLog
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("deposit_log_id = ?", depositID).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepositNotFound
		}
		return nil, fmt.Errorf("failed to lock deposit: %w", err)
	}
	return &d, nil
}

func (s *GormStore) SaveDeposit(ctx context.Context, d *DepositLog) error {
	result := s.db.WithContext(ctx).
		Model(&DepositLog{}).
		Where("deposit_log_id = ?", d.DepositLogID).
		Updates(map[string]interface{}{
			"status":          d.Status,
			"real_before":     d.RealBefore,
			"real_after":      d.RealAfter,
			"wagering_before": d.WageringBefore,
			"wagering_after":  d.WageringAfter,
			"completed_at":    d.CompletedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save deposit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDepositNotFound
	}
	return nil
}

func (s *GormStore) CreateWithdrawal(ctx context.Context, w *WithdrawalLog) error {
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

func (s *GormStore) CreateBetLog(ctx context.Context, b *BetLog) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create bet log: %w", err)
	}
	return nil
}

func (s *GormStore) CreateGameSession(ctx context.Context, sess *GameSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("failed to create game session: %w", err)
	}
	return nil
}

func (s *GormStore) GetGameSessionForUpdate(ctx context.Context, sessionID string) (*GameSession, error) {
	var sess GameSession
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("game_session_id = ?", sessionID).
		First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to lock game session: %w", err)
	}
	return &sess, nil
}

func (s *GormStore) SaveGameSession(ctx context.Context, sess *GameSession) error {
	result := s.db.WithContext(ctx).
		Model(&GameSession{}).
		Where("game_session_id = ?", sess.GameSessionID).
		Updates(map[string]interface{}{
			"total_wagered": sess.TotalWagered,
			"total_won":     sess.TotalWon,
			"total_bets":    sess.TotalBets,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to save game session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *GormStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	var p Product
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}
