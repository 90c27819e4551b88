package repo

import (
	"errors"
	"time"
)

// Estados da rodada. Transições só avançam:
// OPEN -> AWAITING_RESULT -> SETTLED, nunca revertidas ou puladas.
const (
	StateOpen           = "OPEN"
	StateAwaitingResult = "AWAITING_RESULT"
	StateSettled        = "SETTLED"
)

// Origem do resultado vencedor.
const (
	SourceOperator = "OPERATOR"
	SourceRandom   = "RANDOM"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStaleState indica que a transição guardada não encontrou a rodada
	// no estado esperado (outro ator avançou primeiro).
	ErrStaleState = errors.New("round state changed concurrently")

	// ErrBiddingOpen indica liquidação tentada com a janela de apostas ainda aberta.
	ErrBiddingOpen = errors.New("round still accepting bids")
)

// Round é o modelo persistido de uma rodada.
type Round struct {
	ID             string
	State          string
	BiddingCloseAt time.Time
	SettleAt       time.Time
	WinningOutcome string // vazio até a liquidação
	ResultSource   string // vazio até a liquidação
	CreatedAt      time.Time
	SettledAt      *time.Time
}

// Bid é o registro imutável de uma aposta aceita.
// PayoutCents só é escrito pela transação de liquidação.
type Bid struct {
	ID             string
	RoundID        string
	UserID         string
	OutcomeID      string
	Quantity       int64
	UnitPriceCents int64 // snapshot do preço no momento da aceitação
	TotalCents     int64
	PayoutCents    int64
	CreatedAt      time.Time
}

// BidItem é um par (outcome, quantity) com o preço fixado pelo ledger,
// insumo da transação de placement.
type BidItem struct {
	OutcomeID      string
	Quantity       int64
	UnitPriceCents int64
}

// SettlementRecord registra a liquidação de uma rodada; no máximo um por
// rodada (chave de idempotência = round_id), jamais mutado após criado.
type SettlementRecord struct {
	RoundID          string
	WinningOutcome   string
	ResultSource     string
	Multiplier       int64
	TotalWinners     int
	TotalPayoutCents int64
	SettledAt        time.Time
}
