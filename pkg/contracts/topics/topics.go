package topics

const (
	// Apostas aceitas pelo round-service
	BidAccepted = "bid_accepted"

	// Rodadas liquidadas (resultado declarado + payouts creditados)
	RoundSettled = "round_settled"

	// DLQs
	BidAcceptedDLQ  = "bid_accepted_dlq"
	RoundSettledDLQ = "round_settled_dlq"
)
