package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// memBid é a aposta registrada pelo store em memória.
type memBid struct {
	id        string
	roundID   string
	userID    string
	outcomeID string
	quantity  int64
	unitPrice int64
	payout    int64
}

// memStore simula o repositório Postgres em memória, com a mesma semântica
// transacional: placement tudo-ou-nada e liquidação idempotente.
type memStore struct {
	mu sync.Mutex

	rounds      map[string]*repo.Round
	order       []string // ordem de criação
	bids        []memBid
	stakes      map[string]map[string]int64 // roundID -> outcomeID -> cents
	wallets     map[string]int64            // saldo único (main+bonus agregados)
	settlements map[string]*repo.SettlementRecord
	nextBid     int

	placeErr   error         // falha injetada no placement
	placeDelay time.Duration // segura o placement (para exercitar o slot)
}

func newMemStore() *memStore {
	return &memStore{
		rounds:      make(map[string]*repo.Round),
		stakes:      make(map[string]map[string]int64),
		wallets:     make(map[string]int64),
		settlements: make(map[string]*repo.SettlementRecord),
	}
}

func (m *memStore) fund(userID string, cents int64) {
	m.mu.Lock()
	m.wallets[userID] += cents
	m.mu.Unlock()
}

func (m *memStore) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID]
}

func (m *memStore) bidCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bids)
}

func (m *memStore) CreateRound(_ context.Context, r *repo.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.rounds[r.ID] = &c
	m.order = append(m.order, r.ID)
	return nil
}

func (m *memStore) CurrentRound(_ context.Context) (*repo.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.rounds[m.order[i]]
		if r.State != repo.StateSettled {
			c := *r
			return &c, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *memStore) RoundByID(_ context.Context, id string) (*repo.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memStore) AdvanceState(_ context.Context, roundID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok || r.State != from {
		return repo.ErrStaleState
	}
	r.State = to
	return nil
}

func (m *memStore) OutcomeStakes(_ context.Context, roundID string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for id, v := range m.stakes[roundID] {
		out[id] = v
	}
	return out, nil
}

func (m *memStore) PlaceBids(_ context.Context, userID string, round *repo.Round, items []repo.BidItem) ([]string, int64, error) {
	if m.placeDelay > 0 {
		time.Sleep(m.placeDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.placeErr != nil {
		return nil, 0, m.placeErr
	}
	r, ok := m.rounds[round.ID]
	if !ok || r.State != repo.StateOpen {
		return nil, 0, repo.ErrStaleState
	}

	var total int64
	for _, it := range items {
		total += it.UnitPriceCents * it.Quantity
	}
	if m.wallets[userID] < total {
		return nil, 0, wallet.ErrInsufficientFunds
	}

	// commit: débito, apostas e contadores mudam juntos
	m.wallets[userID] -= total
	ids := make([]string, 0, len(items))
	for _, it := range items {
		m.nextBid++
		id := fmt.Sprintf("bid-%d", m.nextBid)
		ids = append(ids, id)
		m.bids = append(m.bids, memBid{
			id:        id,
			roundID:   round.ID,
			userID:    userID,
			outcomeID: it.OutcomeID,
			quantity:  it.Quantity,
			unitPrice: it.UnitPriceCents,
		})
		if m.stakes[round.ID] == nil {
			m.stakes[round.ID] = make(map[string]int64)
		}
		m.stakes[round.ID][it.OutcomeID] += it.UnitPriceCents * it.Quantity
	}
	return ids, total, nil
}

func (m *memStore) Settle(_ context.Context, roundID, outcomeID, source string, multiplier int64, now time.Time) (*repo.SettlementRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.settlements[roundID]; ok {
		c := *rec
		return &c, false, nil
	}
	r, ok := m.rounds[roundID]
	if !ok {
		return nil, false, repo.ErrNotFound
	}
	if r.State == repo.StateOpen {
		return nil, false, repo.ErrBiddingOpen
	}

	rec := &repo.SettlementRecord{
		RoundID:        roundID,
		WinningOutcome: outcomeID,
		ResultSource:   source,
		Multiplier:     multiplier,
		SettledAt:      now,
	}
	for i := range m.bids {
		b := &m.bids[i]
		if b.roundID != roundID || b.outcomeID != outcomeID {
			continue
		}
		payout := b.unitPrice * b.quantity * multiplier
		b.payout = payout
		m.wallets[b.userID] += payout
		rec.TotalWinners++
		rec.TotalPayoutCents += payout
	}

	m.settlements[roundID] = rec
	r.State = repo.StateSettled
	r.WinningOutcome = outcomeID
	r.ResultSource = source
	r.SettledAt = &now

	c := *rec
	return &c, true, nil
}

func (m *memStore) Settlement(_ context.Context, roundID string) (*repo.SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.settlements[roundID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c := *rec
	return &c, nil
}

// capturePublisher acumula os eventos publicados (em memória).
type capturePublisher struct {
	mu       sync.Mutex
	accepted []events.BidAccepted
	settled  []events.RoundSettled
}

func (c *capturePublisher) PublishBidAccepted(_ context.Context, e events.BidAccepted) error {
	c.mu.Lock()
	c.accepted = append(c.accepted, e)
	c.mu.Unlock()
	return nil
}

func (c *capturePublisher) PublishRoundSettled(_ context.Context, e events.RoundSettled) error {
	c.mu.Lock()
	c.settled = append(c.settled, e)
	c.mu.Unlock()
	return nil
}
