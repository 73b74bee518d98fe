// Package ledgertest provides an in-memory ledger.Store for tests. Atomic
// serializes callers on one mutex, mirroring the row-lock serialization the
// real store gets from postgres, and restores a snapshot on rollback.
package ledgertest

import (
	"context"
	"sort"
	"sync"

	"pam_service/internal/ledger"
)

type state struct {
	mu          sync.Mutex
	operators   map[string]*ledger.Operator
	disabled    map[string]bool // operatorID + "/" + gameID
	users       map[string]*ledger.User
	balances    map[string]*ledger.UserBalance
	bonuses     []*ledger.ActiveBonus // insertion order, ties broken by it
	bonusLogs   map[string]*ledger.BonusLog
	deposits    map[string]*ledger.DepositLog
	withdrawals map[string]*ledger.WithdrawalLog
	betLogs     []*ledger.BetLog
	sessions    map[string]*ledger.GameSession
	products    map[string]*ledger.Product
}

type Store struct {
	st   *state
	inTx bool
}

func NewStore() *Store {
	return &Store{st: &state{
		operators:   make(map[string]*ledger.Operator),
		disabled:    make(map[string]bool),
		users:       make(map[string]*ledger.User),
		balances:    make(map[string]*ledger.UserBalance),
		bonusLogs:   make(map[string]*ledger.BonusLog),
		deposits:    make(map[string]*ledger.DepositLog),
		withdrawals: make(map[string]*ledger.WithdrawalLog),
		sessions:    make(map[string]*ledger.GameSession),
		products:    make(map[string]*ledger.Product),
	}}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.st.mu.Lock()
	return s.st.mu.Unlock
}

func (s *Store) Atomic(ctx context.Context, fn func(tx ledger.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	snap := s.st.clone()
	if err := fn(&Store{st: s.st, inTx: true}); err != nil {
		s.st.restore(snap)
		return err
	}
	return nil
}

func (st *state) clone() *state {
	c := &state{
		operators:   make(map[string]*ledger.Operator, len(st.operators)),
		disabled:    make(map[string]bool, len(st.disabled)),
		users:       make(map[string]*ledger.User, len(st.users)),
		balances:    make(map[string]*ledger.UserBalance, len(st.balances)),
		bonuses:     make([]*ledger.ActiveBonus, 0, len(st.bonuses)),
		bonusLogs:   make(map[string]*ledger.BonusLog, len(st.bonusLogs)),
		deposits:    make(map[string]*ledger.DepositLog, len(st.deposits)),
		withdrawals: make(map[string]*ledger.WithdrawalLog, len(st.withdrawals)),
		betLogs:     make([]*ledger.BetLog, 0, len(st.betLogs)),
		sessions:    make(map[string]*ledger.GameSession, len(st.sessions)),
		products:    make(map[string]*ledger.Product, len(st.products)),
	}
	for k, v := range st.operators {
		cp := *v
		c.operators[k] = &cp
	}
	for k, v := range st.disabled {
		c.disabled[k] = v
	}
	for k, v := range st.users {
		cp := *v
		c.users[k] = &cp
	}
	for k, v := range st.balances {
		cp := *v
		c.balances[k] = &cp
	}
	for _, v := range st.bonuses {
		cp := *v
		c.bonuses = append(c.bonuses, &cp)
	}
	for k, v := range st.bonusLogs {
		cp := *v
		c.bonusLogs[k] = &cp
	}
	for k, v := range st.deposits {
		cp := *v
		c.deposits[k] = &cp
	}
	for k, v := range st.withdrawals {
		cp := *v
		c.withdrawals[k] = &cp
	}
	for _, v := range st.betLogs {
		cp := *v
		c.betLogs = append(c.betLogs, &cp)
	}
	for k, v := range st.sessions {
		cp := *v
		c.sessions[k] = &cp
	}
	for k, v := range st.products {
		cp := *v
		c.products[k] = &cp
	}
	return c
}

func (st *state) restore(snap *state) {
	st.operators = snap.operators
	st.disabled = snap.disabled
	st.users = snap.users
	st.balances = snap.balances
	st.bonuses = snap.bonuses
	st.bonusLogs = snap.bonusLogs
	st.deposits = snap.deposits
	st.withdrawals = snap.withdrawals
	st.betLogs = snap.betLogs
	st.sessions = snap.sessions
	st.products = snap.products
}

// Seed helpers, not part of ledger.Store.

func (s *Store) SeedOperator(op *ledger.Operator) {
	defer s.lock()()
	cp := *op
	s.st.operators[op.OperatorID] = &cp
}

func (s *Store) SeedProduct(p *ledger.Product) {
	defer s.lock()()
	cp := *p
	s.st.products[p.ProductID] = &cp
}

func (s *Store) Operator(operatorID string) *ledger.Operator {
	defer s.lock()()
	if op, ok := s.st.operators[operatorID]; ok {
		cp := *op
		return &cp
	}
	return nil
}

func (s *Store) Bonus(bonusID string) *ledger.ActiveBonus {
	defer s.lock()()
	for _, b := range s.st.bonuses {
		if b.BonusID == bonusID {
			cp := *b
			return &cp
		}
	}
	return nil
}

func (s *Store) AllBonuses(userID string) []*ledger.ActiveBonus {
	defer s.lock()()
	var out []*ledger.ActiveBonus
	for _, b := range s.st.bonuses {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) BetLogs(userID string) []*ledger.BetLog {
	defer s.lock()()
	var out []*ledger.BetLog
	for _, b := range s.st.betLogs {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) Deposit(depositID string) *ledger.DepositLog {
	defer s.lock()()
	if d, ok := s.st.deposits[depositID]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (s *Store) Withdrawals(userID string) []*ledger.WithdrawalLog {
	defer s.lock()()
	var out []*ledger.WithdrawalLog
	for _, w := range s.st.withdrawals {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) Session(sessionID string) *ledger.GameSession {
	defer s.lock()()
	if sess, ok := s.st.sessions[sessionID]; ok {
		cp := *sess
		return &cp
	}
	return nil
}

// ledger.Store implementation.

func (s *Store) EnsureUser(ctx context.Context, userID, operatorID string) error {
	defer s.lock()()
	if _, ok := s.st.users[userID]; !ok {
		s.st.users[userID] = &ledger.User{UserID: userID, OperatorID: operatorID}
	}
	if _, ok := s.st.balances[userID]; !ok {
		s.st.balances[userID] = &ledger.UserBalance{UserID: userID}
	}
	return nil
}

func (s *Store) GetOperatorForUpdate(ctx context.Context, operatorID string) (*ledger.Operator, error) {
	defer s.lock()()
	op, ok := s.st.operators[operatorID]
	if !ok {
		return nil, ledger.ErrOperatorNotFound
	}
	cp := *op
	return &cp, nil
}

func (s *Store) SaveOperator(ctx context.Context, op *ledger.Operator) error {
	defer s.lock()()
	if _, ok := s.st.operators[op.OperatorID]; !ok {
		return ledger.ErrOperatorNotFound
	}
	cp := *op
	s.st.operators[op.OperatorID] = &cp
	return nil
}

func (s *Store) IsGameDisabled(ctx context.Context, operatorID, gameID string) (bool, error) {
	defer s.lock()()
	return s.st.disabled[operatorID+"/"+gameID], nil
}

func (s *Store) SetGameDisabled(ctx context.Context, operatorID, gameID string, disabled bool) error {
	defer s.lock()()
	s.st.disabled[operatorID+"/"+gameID] = disabled
	return nil
}

func (s *Store) GetUserBalance(ctx context.Context, userID string) (*ledger.UserBalance, error) {
	return s.GetUserBalanceForUpdate(ctx, userID)
}

func (s *Store) GetUserBalanceForUpdate(ctx context.Context, userID string) (*ledger.UserBalance, error) {
	defer s.lock()()
	bal, ok := s.st.balances[userID]
	if !ok {
		return nil, ledger.ErrBalanceNotFound
	}
	cp := *bal
	return &cp, nil
}

func (s *Store) SaveUserBalance(ctx context.Context, bal *ledger.UserBalance) error {
	defer s.lock()()
	if _, ok := s.st.balances[bal.UserID]; !ok {
		return ledger.ErrBalanceNotFound
	}
	cp := *bal
	s.st.balances[bal.UserID] = &cp
	return nil
}

func (s *Store) GetActiveBonusesForUpdate(ctx context.Context, userID string) ([]*ledger.ActiveBonus, error) {
	return s.GetActiveBonuses(ctx, userID)
}

func (s *Store) GetActiveBonuses(ctx context.Context, userID string) ([]*ledger.ActiveBonus, error) {
	defer s.lock()()
	var out []*ledger.ActiveBonus
	for _, b := range s.st.bonuses {
		if b.UserID == userID && b.Status == ledger.BonusStatusActive {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *Store) SaveBonus(ctx context.Context, b *ledger.ActiveBonus) error {
	defer s.lock()()
	for i, existing := range s.st.bonuses {
		if existing.BonusID == b.BonusID {
			cp := *b
			s.st.bonuses[i] = &cp
			return nil
		}
	}
	return ledger.ErrBonusNotFound
}

func (s *Store) CreateBonus(ctx context.Context, b *ledger.ActiveBonus) error {
	defer s.lock()()
	cp := *b
	s.st.bonuses = append(s.st.bonuses, &cp)
	return nil
}

func (s *Store) CreateBonusLog(ctx context.Context, bl *ledger.BonusLog) error {
	defer s.lock()()
	cp := *bl
	s.st.bonusLogs[bl.BonusLogID] = &cp
	return nil
}

func (s *Store) CreateDeposit(ctx context.Context, d *ledger.DepositLog) error {
	defer s.lock()()
	cp := *d
	s.st.deposits[d.DepositLogID] = &cp
	return nil
}

func (s *Store) GetDepositForUpdate(ctx context.Context, depositID string) (*ledger.DepositLog, error) {
	defer s.lock()()
	d, ok := s.st.deposits[depositID]
	if !ok {
		return nil, ledger.ErrDepositNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) SaveDeposit(ctx context.Context, d *ledger.DepositLog) error {
	defer s.lock()()
	if _, ok := s.st.deposits[d.DepositLogID]; !ok {
		return ledger.ErrDepositNotFound
	}
	cp := *d
	s.st.deposits[d.DepositLogID] = &cp
	return nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, w *ledger.WithdrawalLog) error {
	defer s.lock()()
	cp := *w
	s.st.withdrawals[w.WithdrawalLogID] = &cp
	return nil
}

func (s *Store) CreateBetLog(ctx context.Context, b *ledger.BetLog) error {
	defer s.lock()()
	cp := *b
	s.st.betLogs = append(s.st.betLogs, &cp)
	return nil
}

func (s *Store) CreateGameSession(ctx context.Context, sess *ledger.GameSession) error {
	defer s.lock()()
	cp := *sess
	s.st.sessions[sess.GameSessionID] = &cp
	return nil
}

func (s *Store) GetGameSessionForUpdate(ctx context.Context, sessionID string) (*ledger.GameSession, error) {
	defer s.lock()()
	sess, ok := s.st.sessions[sessionID]
	if !ok {
		return nil, ledger.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) SaveGameSession(ctx context.Context, sess *ledger.GameSession) error {
	defer s.lock()()
	if _, ok := s.st.sessions[sess.GameSessionID]; !ok {
		return ledger.ErrSessionNotFound
	}
	cp := *sess
	s.st.sessions[sess.GameSessionID] = &cp
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID string) (*ledger.Product, error) {
	defer s.lock()()
	p, ok := s.st.products[productID]
	if !ok {
		return nil, ledger.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}
