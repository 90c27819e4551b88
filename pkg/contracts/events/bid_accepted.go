package events

// Evento publicado no tópico "bid_accepted" a cada aposta persistida.
// Uma requisição de placement com N pares (outcome, quantity) gera N eventos,
// um por registro de aposta.
type BidAccepted struct {
	BidID          string `json:"bid_id"`
	UserID         string `json:"user_id"`
	RoundID        string `json:"round_id"`
	OutcomeID      string `json:"outcome_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"` // preço no momento da aceitação
	TotalCents     int64  `json:"total_cents"`
	TsUnixMs       int64  `json:"ts_unix_ms"`
}
