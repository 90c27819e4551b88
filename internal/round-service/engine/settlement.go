package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
	"github.com/radieske/card-round-platform-poc/internal/round-service/pricing"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// SettlementStore liquida uma rodada numa única transação durável e devolve
// o registro existente quando a rodada já foi liquidada (created=false).
type SettlementStore interface {
	Settle(ctx context.Context, roundID, outcomeID, source string, multiplier int64, now time.Time) (*repo.SettlementRecord, bool, error)
	Settlement(ctx context.Context, roundID string) (*repo.SettlementRecord, error)
}

// RoundSettledPublisher publica o evento round_settled (melhor esforço).
type RoundSettledPublisher interface {
	PublishRoundSettled(ctx context.Context, e events.RoundSettled) error
}

// Settler fecha rodadas exatamente uma vez. Invocações concorrentes
// (scheduler vs. operador) serializam no mutex e na guarda de idempotência
// do store: só uma cria o registro, as demais recebem o existente.
type Settler struct {
	log        *zap.Logger
	store      SettlementStore
	catalog    *pricing.Catalog
	bc         *broadcast.Broadcaster
	multiplier int64

	mu  sync.Mutex
	now func() time.Time

	// Opcionais, ligados no main
	Pub       RoundSettledPublisher
	OnSettled func(rec *repo.SettlementRecord)
}

// NewSettler monta o engine de liquidação com multiplicador fixo.
func NewSettler(log *zap.Logger, store SettlementStore, catalog *pricing.Catalog, bc *broadcast.Broadcaster, multiplier int64) *Settler {
	return &Settler{
		log:        log,
		store:      store,
		catalog:    catalog,
		bc:         bc,
		multiplier: multiplier,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Settle liquida a rodada com o outcome vencedor informado.
// Idempotente: se já existe SettlementRecord devolve-o inalterado, sem
// recomputar nem repagar. source identifica a origem do resultado
// (OPERATOR para ação manual, RANDOM para o fallback do scheduler).
func (s *Settler) Settle(ctx context.Context, roundID, outcomeID, source string) (*repo.SettlementRecord, bool, error) {
	outcome, ok := s.catalog.Get(outcomeID)
	if !ok {
		return nil, false, fmt.Errorf("%w: unknown outcome %q", ErrValidation, outcomeID)
	}
	if source != repo.SourceOperator && source != repo.SourceRandom {
		return nil, false, fmt.Errorf("%w: invalid result source %q", ErrValidation, source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, created, err := s.store.Settle(ctx, roundID, outcomeID, source, s.multiplier, now)
	if err != nil {
		if err == repo.ErrBiddingOpen {
			return nil, false, fmt.Errorf("%w: bidding window still open", ErrValidation)
		}
		return nil, false, err
	}
	if !created {
		// corrida scheduler/operador: o perdedor observa "já liquidado",
		// que é no-op e não erro
		return rec, false, nil
	}

	s.log.Info("round settled",
		zap.String("roundId", rec.RoundID),
		zap.String("winningOutcome", rec.WinningOutcome),
		zap.String("source", rec.ResultSource),
		zap.Int("winners", rec.TotalWinners),
		zap.Int64("totalPayoutCents", rec.TotalPayoutCents),
	)

	s.bc.Publish(ctx, broadcast.Event{
		Type: broadcast.TypeResultDeclared,
		Payload: broadcast.ResultDeclared{
			Time:   rec.SettledAt.Format(time.RFC3339),
			Result: outcome.Label,
		},
	})

	if s.Pub != nil {
		ev := events.RoundSettled{
			RoundID:          rec.RoundID,
			WinningOutcome:   rec.WinningOutcome,
			OutcomeLabel:     outcome.Label,
			ResultSource:     rec.ResultSource,
			Multiplier:       rec.Multiplier,
			TotalWinners:     rec.TotalWinners,
			TotalPayoutCents: rec.TotalPayoutCents,
			SettledAt:        rec.SettledAt,
		}
		if err := s.Pub.PublishRoundSettled(ctx, ev); err != nil {
			s.log.Warn("publish round_settled failed", zap.String("roundId", rec.RoundID), zap.Error(err))
		}
	}

	if s.OnSettled != nil {
		s.OnSettled(rec)
	}
	return rec, true, nil
}

// Record devolve o registro de liquidação de uma rodada, se existir.
func (s *Settler) Record(ctx context.Context, roundID string) (*repo.SettlementRecord, error) {
	return s.store.Settlement(ctx, roundID)
}
