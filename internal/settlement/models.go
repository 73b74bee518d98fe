package settlement

type SettleRequest struct {
	UserID        string `json:"user_id"`
	OperatorID    string `json:"operator_id"`
	GameID        string `json:"game_id"`
	GameCategory  string `json:"game_category"`
	GameSessionID string `json:"game_session_id"`
	WagerAmount   int64  `json:"wager_amount"`
	WinAmount     int64  `json:"win_amount"`
}

// BalanceSnapshot is what the caller sees after a settled bet.
type BalanceSnapshot struct {
	RealBalance    int64 `json:"real_balance"`
	BonusBalance   int64 `json:"bonus_balance"`
	TotalBalance   int64 `json:"total_balance"`
	WinAmount      int64 `json:"win_amount"`
	BonusCompleted bool  `json:"bonus_completed"`
}
