package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/pricing"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// PlacementStore aplica um placement como unidade atômica (débito + bids +
// contadores) — implementado pelo repo Postgres numa única transação.
type PlacementStore interface {
	PlaceBids(ctx context.Context, userID string, round *repo.Round, items []repo.BidItem) ([]string, int64, error)
}

// BidAcceptedPublisher publica eventos de aposta aceita (melhor esforço).
type BidAcceptedPublisher interface {
	PublishBidAccepted(ctx context.Context, e events.BidAccepted) error
}

// PlacePair é um par (outcome, quantity) da requisição de placement.
type PlacePair struct {
	OutcomeID string
	Quantity  int64
}

// PlacementResult resume um placement aceito.
type PlacementResult struct {
	RoundID    string
	BidIDs     []string
	TotalCents int64
	Items      []repo.BidItem
}

// Ledger valida e registra apostas contra a rodada aberta.
// Placements concorrentes serializam no slot por rodada: quem não adquire
// o slot dentro de wait recebe ErrBusy em vez de bloquear indefinidamente.
type Ledger struct {
	log     *zap.Logger
	store   PlacementStore
	prices  *pricing.Engine
	current func() *repo.Round // visão do scheduler da rodada corrente
	wait    time.Duration

	slot chan struct{}
	now  func() time.Time

	// Opcionais, ligados no main
	Pub        BidAcceptedPublisher
	OnAccepted func(bids int, totalCents int64)
	OnRejected func(kind string)
}

// NewLedger monta o BidLedger.
func NewLedger(log *zap.Logger, store PlacementStore, prices *pricing.Engine, current func() *repo.Round, wait time.Duration) *Ledger {
	return &Ledger{
		log:     log,
		store:   store,
		prices:  prices,
		current: current,
		wait:    wait,
		slot:    make(chan struct{}, 1),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Place aceita um placement com um ou mais pares (outcome, quantity) contra
// a rodada alvo, tudo-ou-nada: ou todos os pares são registrados e a carteira
// debitada exatamente uma vez pelo total combinado, ou nada muda.
func (l *Ledger) Place(ctx context.Context, userID, roundID string, pairs []PlacePair) (*PlacementResult, error) {
	res, err := l.place(ctx, userID, roundID, pairs)
	if err != nil {
		if l.OnRejected != nil {
			l.OnRejected(Kind(err))
		}
		return nil, err
	}
	if l.OnAccepted != nil {
		l.OnAccepted(len(res.BidIDs), res.TotalCents)
	}
	return res, nil
}

func (l *Ledger) place(ctx context.Context, userID, roundID string, pairs []PlacePair) (*PlacementResult, error) {
	// Pré-condições checadas antes de qualquer mutação
	if userID == "" || roundID == "" {
		return nil, fmt.Errorf("%w: user and round required", ErrValidation)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: at least one (outcome, quantity) pair", ErrValidation)
	}
	catalog := l.prices.Catalog()
	for _, p := range pairs {
		if p.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
		}
		if _, ok := catalog.Get(p.OutcomeID); !ok {
			return nil, fmt.Errorf("%w: unknown outcome %q", ErrValidation, p.OutcomeID)
		}
	}

	// Slot de serialização por rodada, com espera limitada
	select {
	case l.slot <- struct{}{}:
	case <-time.After(l.wait):
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.slot }()

	cur := l.current()
	if cur == nil || cur.ID != roundID {
		return nil, ErrRoundNotOpen
	}
	// Deadline duro: mesmo que o scheduler ainda não tenha flipado o estado,
	// apostas após biddingClose são recusadas.
	if cur.State != repo.StateOpen || !l.now().Before(cur.BiddingCloseAt) {
		return nil, ErrRoundNotOpen
	}

	// Snapshot de preço no momento da aceitação, sob o slot
	items := make([]repo.BidItem, 0, len(pairs))
	for _, p := range pairs {
		price, err := l.prices.CurrentPrice(p.OutcomeID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		items = append(items, repo.BidItem{
			OutcomeID:      p.OutcomeID,
			Quantity:       p.Quantity,
			UnitPriceCents: price,
		})
	}

	bidIDs, total, err := l.store.PlaceBids(ctx, userID, cur, items)
	if err != nil {
		if err == repo.ErrStaleState {
			return nil, ErrRoundNotOpen
		}
		return nil, err
	}

	// Commit feito: atualiza os contadores do engine ainda sob o slot,
	// para que o próximo placement veja o preço pós-escalada.
	for _, it := range items {
		l.prices.RecordStake(it.OutcomeID, it.UnitPriceCents*it.Quantity)
	}

	l.publishAccepted(ctx, userID, cur.ID, bidIDs, items)

	return &PlacementResult{
		RoundID:    cur.ID,
		BidIDs:     bidIDs,
		TotalCents: total,
		Items:      items,
	}, nil
}

// publishAccepted emite um evento bid_accepted por aposta registrada.
// Falha de publicação não desfaz o placement (o worker se recupera pelo banco).
func (l *Ledger) publishAccepted(ctx context.Context, userID, roundID string, bidIDs []string, items []repo.BidItem) {
	if l.Pub == nil {
		return
	}
	ts := l.now().UnixMilli()
	for i, it := range items {
		ev := events.BidAccepted{
			BidID:          bidIDs[i],
			UserID:         userID,
			RoundID:        roundID,
			OutcomeID:      it.OutcomeID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			TotalCents:     it.UnitPriceCents * it.Quantity,
			TsUnixMs:       ts,
		}
		if err := l.Pub.PublishBidAccepted(ctx, ev); err != nil {
			l.log.Warn("publish bid_accepted failed", zap.String("bidId", ev.BidID), zap.Error(err))
		}
	}
}
