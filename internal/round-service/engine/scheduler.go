package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
	"github.com/radieske/card-round-platform-poc/internal/round-service/pricing"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
)

// RoundStore é a persistência de rodadas vista pelo scheduler.
type RoundStore interface {
	CreateRound(ctx context.Context, r *repo.Round) error
	CurrentRound(ctx context.Context) (*repo.Round, error)
	AdvanceState(ctx context.Context, roundID, from, to string) error
	OutcomeStakes(ctx context.Context, roundID string) (map[string]int64, error)
}

// SchedulerConfig parametriza o timing das rodadas.
type SchedulerConfig struct {
	BiddingWindow time.Duration // abertura -> fim das apostas
	TotalWindow   time.Duration // abertura -> liquidação
	Tick          time.Duration // período do tick
}

// Scheduler é a fonte única de verdade do timing e das transições de estado.
// Um único goroutine executa os ticks; toda transição é write-then-transition:
// primeiro a escrita durável, depois o flip do estado em memória. Erros de
// persistência são logados e retentados no próximo tick.
type Scheduler struct {
	log     *zap.Logger
	store   RoundStore
	settler *Settler
	prices  *pricing.Engine
	bc      *broadcast.Broadcaster
	cfg     SchedulerConfig

	now func() time.Time
	rnd *rand.Rand

	mu  sync.Mutex
	cur *repo.Round
}

// NewScheduler monta o scheduler de rodadas.
func NewScheduler(log *zap.Logger, store RoundStore, settler *Settler, prices *pricing.Engine, bc *broadcast.Broadcaster, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		log:     log,
		store:   store,
		settler: settler,
		prices:  prices,
		bc:      bc,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executa o loop de ticks até o contexto encerrar.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.tick(ctx) // primeiro tick imediato (recuperação/abertura)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Current retorna uma cópia da rodada corrente (nil se nenhuma).
func (s *Scheduler) Current() *repo.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	c := *s.cur
	return &c
}

// tick avalia o tempo decorrido contra as fronteiras da rodada.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	cur, err := s.store.CurrentRound(ctx)
	if err == repo.ErrNotFound {
		s.openRound(ctx, now)
		return
	}
	if err != nil {
		s.log.Warn("load current round failed", zap.Error(err))
		return
	}

	// Rodada vinda do banco que este processo ainda não conhecia
	// (restart no meio da rodada): repõe os contadores de preço.
	if prev := s.Current(); prev == nil || prev.ID != cur.ID {
		if stakes, err := s.store.OutcomeStakes(ctx, cur.ID); err != nil {
			s.log.Warn("restore outcome stakes failed", zap.String("roundId", cur.ID), zap.Error(err))
		} else {
			s.prices.Restore(stakes)
			s.log.Info("recovered round from store", zap.String("roundId", cur.ID), zap.String("state", cur.State))
		}
	}

	switch cur.State {
	case repo.StateOpen:
		if !now.Before(cur.BiddingCloseAt) {
			if err := s.store.AdvanceState(ctx, cur.ID, repo.StateOpen, repo.StateAwaitingResult); err != nil {
				if err != repo.ErrStaleState {
					s.log.Warn("close bidding failed, will retry", zap.String("roundId", cur.ID), zap.Error(err))
				}
				return
			}
			cur.State = repo.StateAwaitingResult
			s.setCurrent(cur)
			s.bc.Publish(ctx, broadcast.Event{
				Type: broadcast.TypeStateChanged,
				Payload: broadcast.StateChanged{
					RoundID: cur.ID,
					From:    repo.StateOpen,
					To:      repo.StateAwaitingResult,
				},
			})
			s.log.Info("bidding closed", zap.String("roundId", cur.ID))
		}

	case repo.StateAwaitingResult:
		if !now.Before(cur.SettleAt) {
			// Política explícita: o fallback pseudo-aleatório só dispara se
			// nenhum resultado de operador chegou até o prazo. Se o operador
			// já liquidou, o Settle devolve o registro existente (no-op).
			drawn := s.prices.Catalog().Draw(s.rnd)
			if _, _, err := s.settler.Settle(ctx, cur.ID, drawn.ID, repo.SourceRandom); err != nil {
				s.log.Warn("scheduled settlement failed, will retry", zap.String("roundId", cur.ID), zap.Error(err))
				return
			}
			// Próximo tick abre a nova rodada
			return
		}
	}

	s.setCurrent(cur)
	s.publishTick(ctx, cur, now)
}

// openRound cria e anuncia uma nova rodada OPEN (passo 1 do ciclo).
func (s *Scheduler) openRound(ctx context.Context, now time.Time) {
	r := &repo.Round{
		ID:             uuid.NewString(),
		State:          repo.StateOpen,
		BiddingCloseAt: now.Add(s.cfg.BiddingWindow),
		SettleAt:       now.Add(s.cfg.TotalWindow),
		CreatedAt:      now,
	}
	if err := s.store.CreateRound(ctx, r); err != nil {
		// sem escrita durável não há rodada; retry no próximo tick
		s.log.Warn("create round failed, will retry", zap.Error(err))
		return
	}

	s.prices.ResetForRound()
	s.setCurrent(r)

	s.bc.Publish(ctx, broadcast.Event{
		Type: broadcast.TypeRoundCreated,
		Payload: broadcast.RoundCreated{
			RoundID:        r.ID,
			BiddingCloseAt: r.BiddingCloseAt.Format(time.RFC3339),
			SettleAt:       r.SettleAt.Format(time.RFC3339),
		},
	})
	s.log.Info("round opened",
		zap.String("roundId", r.ID),
		zap.Time("biddingCloseAt", r.BiddingCloseAt),
		zap.Time("settleAt", r.SettleAt),
	)
	s.publishTick(ctx, r, now)
}

func (s *Scheduler) setCurrent(r *repo.Round) {
	s.mu.Lock()
	c := *r
	s.cur = &c
	s.mu.Unlock()
}

// publishTick emite a mensagem de relógio da rodada corrente.
func (s *Scheduler) publishTick(ctx context.Context, r *repo.Round, now time.Time) {
	s.bc.Publish(ctx, broadcast.Event{
		Type:    broadcast.TypeTimerTick,
		Payload: timerTick(r, now),
	})
}

// timerTick calcula a mensagem de timer: contagem até o fim das apostas
// enquanto OPEN, até o resultado durante o intervalo (isBreak).
func timerTick(r *repo.Round, now time.Time) broadcast.TimerTick {
	deadline := r.BiddingCloseAt
	isBreak := r.State != repo.StateOpen
	if isBreak {
		deadline = r.SettleAt
	}
	secs := int(deadline.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return broadcast.TimerTick{
		SecondsRemaining: secs,
		IsBreak:          isBreak,
		RoundState:       r.State,
		ActiveRoundID:    r.ID,
		NextResultTime:   r.SettleAt.Format(time.RFC3339),
	}
}

// Snapshot monta o estado completo para resync de assinantes.
func (s *Scheduler) Snapshot() broadcast.Snapshot {
	now := s.now()
	cur := s.Current()
	if cur == nil {
		return broadcast.Snapshot{Outcomes: s.prices.Snapshot()}
	}
	tick := timerTick(cur, now)
	return broadcast.Snapshot{
		RoundID:          cur.ID,
		RoundState:       cur.State,
		SecondsRemaining: tick.SecondsRemaining,
		IsBreak:          tick.IsBreak,
		NextResultTime:   tick.NextResultTime,
		Outcomes:         s.prices.Snapshot(),
	}
}
