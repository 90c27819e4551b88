package dto

type PlaceBidsResponse struct {
	OK         bool     `json:"ok"`
	BidIDs     []string `json:"bidIds,omitempty"`
	TotalCents int64    `json:"total_cents,omitempty"`
	ErrorKind  string   `json:"errorKind,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// WalletResponse expõe os dois sub-saldos em centavos.
type WalletResponse struct {
	Main  int64 `json:"main"`
	Bonus int64 `json:"bonus"`
}

type DepositResponse struct {
	UserID string `json:"userId"`
	Main   int64  `json:"main"`
	Bonus  int64  `json:"bonus"`
}

// SettlementResponse resume o SettlementRecord de uma rodada.
type SettlementResponse struct {
	RoundID          string `json:"roundId"`
	WinningOutcome   string `json:"winningOutcome"`
	ResultSource     string `json:"resultSource"`
	Multiplier       int64  `json:"multiplier"`
	TotalWinners     int    `json:"totalWinners"`
	TotalPayoutCents int64  `json:"total_payout_cents"`
	SettledAt        string `json:"settledAt"`
}

type ErrorResponse struct {
	OK        bool   `json:"ok"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}
