package events

import "time"

// Evento emitido pelo round-service após a liquidação de uma rodada.
type RoundSettled struct {
	RoundID          string    `json:"round_id"`
	WinningOutcome   string    `json:"winning_outcome"`
	OutcomeLabel     string    `json:"outcome_label"` // ex: "10♦"
	ResultSource     string    `json:"result_source"` // "OPERATOR" | "RANDOM"
	Multiplier       int64     `json:"multiplier"`
	TotalWinners     int       `json:"total_winners"`
	TotalPayoutCents int64     `json:"total_payout_cents"`
	SettledAt        time.Time `json:"settled_at"`
}
