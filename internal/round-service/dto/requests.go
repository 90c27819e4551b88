package dto

type BidPair struct {
	OutcomeID string `json:"outcomeId"`
	Quantity  int64  `json:"quantity"`
}

type PlaceBidsRequest struct {
	RoundID string    `json:"roundId"`
	Bids    []BidPair `json:"bids"`
}

type DepositRequest struct {
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // opcional p/ rastreio
}

type SettleRequest struct {
	WinningOutcomeID string `json:"winningOutcomeId"`
}
