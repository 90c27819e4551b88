package pricing

import (
	"fmt"
	"sync"
)

// Config parametriza a escalada de preço por outcome.
// O preço corrente é uma função pura do acumulado apostado na rodada:
//
//	price = base + step * floor(staked / threshold)
type Config struct {
	BasePriceCents int64 // preço base no início da rodada
	StepCents      int64 // incremento por degrau
	ThresholdCents int64 // centavos apostados por degrau
}

// PriceFor calcula o preço corrente para um acumulado apostado.
// Monotônica não-decrescente em staked; threshold <= 0 desliga a escalada.
func PriceFor(cfg Config, stakedCents int64) int64 {
	if cfg.ThresholdCents <= 0 || stakedCents <= 0 {
		return cfg.BasePriceCents
	}
	return cfg.BasePriceCents + cfg.StepCents*(stakedCents/cfg.ThresholdCents)
}

// OutcomeState é o estado vivo de um outcome dentro da rodada corrente.
type OutcomeState struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	PriceCents  int64  `json:"priceCents"`
	StakedCents int64  `json:"stakedCents"`
}

// Engine mantém os contadores de stake e preço corrente por outcome.
// Os contadores são autoritativos no processo e zerados a cada rollover;
// o placement persiste o snapshot no banco para recuperação pós-restart.
type Engine struct {
	catalog *Catalog
	cfg     Config

	mu     sync.Mutex
	staked map[string]int64
}

// NewEngine cria o engine de preços sobre um catálogo fixo.
func NewEngine(catalog *Catalog, cfg Config) *Engine {
	return &Engine{
		catalog: catalog,
		cfg:     cfg,
		staked:  make(map[string]int64),
	}
}

// Catalog expõe o catálogo subjacente.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// CurrentPrice retorna o preço corrente do outcome.
func (e *Engine) CurrentPrice(outcomeID string) (int64, error) {
	if _, ok := e.catalog.Get(outcomeID); !ok {
		return 0, fmt.Errorf("unknown outcome %q", outcomeID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return PriceFor(e.cfg, e.staked[outcomeID]), nil
}

// RecordStake incrementa o acumulado apostado do outcome.
// Chamado pelo BidLedger somente após o commit do placement.
func (e *Engine) RecordStake(outcomeID string, amountCents int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staked[outcomeID] += amountCents
}

// ResetForRound zera todos os contadores; chamado no rollover da rodada.
func (e *Engine) ResetForRound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staked = make(map[string]int64)
}

// Restore recarrega contadores persistidos (recuperação pós-restart).
func (e *Engine) Restore(staked map[string]int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.staked = make(map[string]int64, len(staked))
	for id, v := range staked {
		e.staked[id] = v
	}
}

// Snapshot retorna o estado corrente de todos os outcomes do catálogo.
func (e *Engine) Snapshot() []OutcomeState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]OutcomeState, 0, e.catalog.Len())
	for _, o := range e.catalog.All() {
		staked := e.staked[o.ID]
		out = append(out, OutcomeState{
			ID:          o.ID,
			Label:       o.Label,
			PriceCents:  PriceFor(e.cfg, staked),
			StakedCents: staked,
		})
	}
	return out
}
