package engine

import (
	"errors"

	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
)

var (
	// ErrRoundNotOpen: a rodada alvo não aceita mais apostas (terminal).
	ErrRoundNotOpen = errors.New("round not open for bids")

	// ErrBusy: não foi possível adquirir o slot de serialização no prazo.
	// Transiente — o cliente deve tentar de novo com backoff limitado.
	ErrBusy = errors.New("busy, retry")

	// ErrValidation: entrada malformada (terminal, sem retry).
	ErrValidation = errors.New("validation error")
)

// Kinds de erro expostos na API e nas métricas.
const (
	KindValidation        = "VALIDATION"
	KindRoundNotOpen      = "ROUND_NOT_OPEN"
	KindInsufficientFunds = "INSUFFICIENT_FUNDS"
	KindBusy              = "BUSY"
	KindNotFound          = "NOT_FOUND"
	KindInternal          = "INTERNAL"
)

// Kind classifica um erro do engine no taxonomy da API.
// Erros de persistência e invariante caem em INTERNAL (opacos pro caller).
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrRoundNotOpen):
		return KindRoundNotOpen
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
