package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/pricing"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
)

func testPricing() *pricing.Engine {
	return pricing.NewEngine(pricing.DefaultCatalog(), pricing.Config{
		BasePriceCents: 1000,
		StepCents:      100,
		ThresholdCents: 50000,
	})
}

func openRoundAt(now time.Time) *repo.Round {
	return &repo.Round{
		ID:             "round-1",
		State:          repo.StateOpen,
		BiddingCloseAt: now.Add(90 * time.Second),
		SettleAt:       now.Add(120 * time.Second),
		CreatedAt:      now,
	}
}

// newTestLedger monta um ledger contra o store em memória com relógio fixo.
func newTestLedger(store *memStore, prices *pricing.Engine, cur *repo.Round, wait time.Duration) *Ledger {
	l := NewLedger(zap.NewNop(), store, prices, func() *repo.Round { return cur }, wait)
	l.now = func() time.Time { return cur.CreatedAt.Add(time.Second) }
	return l
}

func TestPlaceMultiPairAllOrNothing(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 10000)

	prices := testPricing()
	l := newTestLedger(store, prices, cur, time.Second)
	pub := &capturePublisher{}
	l.Pub = pub

	res, err := l.Place(context.Background(), "alice", cur.ID, []PlacePair{
		{OutcomeID: "AS", Quantity: 2},
		{OutcomeID: "10D", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	// preço base 1000: 2x AS + 1x 10D = 3000, debitado uma vez
	if res.TotalCents != 3000 {
		t.Fatalf("total = %d, want 3000", res.TotalCents)
	}
	if len(res.BidIDs) != 2 {
		t.Fatalf("bids criados = %d, want 2", len(res.BidIDs))
	}
	if got := store.balance("alice"); got != 7000 {
		t.Fatalf("saldo pós-placement = %d, want 7000", got)
	}

	// um evento bid_accepted por aposta registrada
	if len(pub.accepted) != 2 {
		t.Fatalf("eventos publicados = %d, want 2", len(pub.accepted))
	}
	if pub.accepted[0].UnitPriceCents != 1000 {
		t.Fatalf("snapshot de preço no evento = %d, want 1000", pub.accepted[0].UnitPriceCents)
	}

	// contadores de escalada atualizados pós-commit
	stakes, _ := store.OutcomeStakes(context.Background(), cur.ID)
	if stakes["AS"] != 2000 || stakes["10D"] != 1000 {
		t.Fatalf("stakes persistidos inesperados: %v", stakes)
	}
}

func TestPlaceValidation(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 10000)
	l := newTestLedger(store, testPricing(), cur, time.Second)

	cases := []struct {
		name  string
		user  string
		round string
		pairs []PlacePair
	}{
		{"sem user", "", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 1}}},
		{"sem pares", "alice", cur.ID, nil},
		{"quantidade zero", "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 0}}},
		{"quantidade negativa", "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: -2}}},
		{"outcome desconhecido", "alice", cur.ID, []PlacePair{{OutcomeID: "2Z", Quantity: 1}}},
	}
	for _, c := range cases {
		_, err := l.Place(context.Background(), c.user, c.round, c.pairs)
		if err == nil || Kind(err) != KindValidation {
			t.Fatalf("%s: err = %v (kind %s), want VALIDATION", c.name, err, Kind(err))
		}
	}

	// nada mudou
	if store.bidCount() != 0 || store.balance("alice") != 10000 {
		t.Fatal("validação rejeitada não pode deixar efeito")
	}
}

func TestPlaceRoundNotOpen(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 10000)
	l := newTestLedger(store, testPricing(), cur, time.Second)

	// rodada alvo diferente da corrente
	_, err := l.Place(context.Background(), "alice", "outra-rodada", []PlacePair{{OutcomeID: "AS", Quantity: 1}})
	if !errors.Is(err, ErrRoundNotOpen) {
		t.Fatalf("rodada divergente: err = %v, want ErrRoundNotOpen", err)
	}

	// estado já avançado
	cur.State = repo.StateAwaitingResult
	_, err = l.Place(context.Background(), "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 1}})
	if !errors.Is(err, ErrRoundNotOpen) {
		t.Fatalf("estado AWAITING_RESULT: err = %v, want ErrRoundNotOpen", err)
	}
}

func TestPlaceAfterBiddingDeadline(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 10000)

	// o scheduler ainda não flipou o estado, mas o relógio já passou do
	// fim da janela: a aposta é recusada mesmo assim
	l := newTestLedger(store, testPricing(), cur, time.Second)
	l.now = func() time.Time { return cur.BiddingCloseAt }

	_, err := l.Place(context.Background(), "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 1}})
	if !errors.Is(err, ErrRoundNotOpen) {
		t.Fatalf("deadline estourado: err = %v, want ErrRoundNotOpen", err)
	}
	if store.bidCount() != 0 {
		t.Fatal("aposta tardia não pode ser registrada")
	}
}

func TestPlaceInsufficientFunds(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("bob", 1500) // cobre 1 carta, não 2

	prices := testPricing()
	l := newTestLedger(store, prices, cur, time.Second)

	_, err := l.Place(context.Background(), "bob", cur.ID, []PlacePair{
		{OutcomeID: "AS", Quantity: 1},
		{OutcomeID: "KS", Quantity: 1},
	})
	if !errors.Is(err, wallet.ErrInsufficientFunds) || Kind(err) != KindInsufficientFunds {
		t.Fatalf("err = %v (kind %s), want INSUFFICIENT_FUNDS", err, Kind(err))
	}

	// tudo-ou-nada: nenhum dos pares entrou, saldo intacto, preço inalterado
	if store.bidCount() != 0 {
		t.Fatal("placement parcial registrado")
	}
	if got := store.balance("bob"); got != 1500 {
		t.Fatalf("saldo = %d, want 1500", got)
	}
	if p, _ := prices.CurrentPrice("AS"); p != 1000 {
		t.Fatalf("contador de preço mudou sem commit: %d", p)
	}
}

func TestPlaceStoreFailureLeavesNoTrace(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 10000)
	store.placeErr = errors.New("tx aborted")

	prices := testPricing()
	l := newTestLedger(store, prices, cur, time.Second)

	_, err := l.Place(context.Background(), "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 1}})
	if err == nil || Kind(err) != KindInternal {
		t.Fatalf("err = %v (kind %s), want INTERNAL", err, Kind(err))
	}
	if p, _ := prices.CurrentPrice("AS"); p != 1000 {
		t.Fatalf("preço mudou apesar do rollback: %d", p)
	}
	if store.balance("alice") != 10000 {
		t.Fatal("saldo mudou apesar do rollback")
	}
}

func TestPlaceBusyWhenSlotHeld(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 100000)
	store.fund("bob", 100000)
	store.placeDelay = 300 * time.Millisecond

	l := newTestLedger(store, testPricing(), cur, 50*time.Millisecond)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := l.Place(context.Background(), "alice", cur.ID, []PlacePair{{OutcomeID: "AS", Quantity: 1}})
		done <- err
	}()

	<-started
	time.Sleep(50 * time.Millisecond) // garante que alice segura o slot

	_, err := l.Place(context.Background(), "bob", cur.ID, []PlacePair{{OutcomeID: "KS", Quantity: 1}})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("segundo placement: err = %v, want ErrBusy", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("primeiro placement falhou: %v", err)
	}
}

func TestConcurrentPlacementsSerializeEscalation(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)

	// threshold baixo: cada placement de 1000 cruza um degrau
	prices := pricing.NewEngine(pricing.DefaultCatalog(), pricing.Config{
		BasePriceCents: 1000,
		StepCents:      100,
		ThresholdCents: 1000,
	})
	l := newTestLedger(store, prices, cur, 5*time.Second)

	const n = 10
	users := make([]string, n)
	for i := range users {
		users[i] = string(rune('a' + i))
		store.fund(users[i], 1_000_000)
	}

	var wg sync.WaitGroup
	results := make(chan *PlacementResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			res, err := l.Place(context.Background(), user, cur.ID, []PlacePair{{OutcomeID: "QH", Quantity: 1}})
			if err != nil {
				t.Errorf("%s: %v", user, err)
				return
			}
			results <- res
		}(users[i])
	}
	wg.Wait()
	close(results)

	var charged int64
	observed := make(map[int64]int) // preço unitário -> ocorrências
	count := 0
	for res := range results {
		charged += res.TotalCents
		observed[res.TotalCents]++ // quantity 1: total == preço unitário
		count++
	}
	if count != n {
		t.Fatalf("placements aceitos = %d, want %d", count, n)
	}
	stakes, _ := store.OutcomeStakes(context.Background(), cur.ID)
	if stakes["QH"] != charged {
		t.Fatalf("stake persistido %d != total cobrado %d", stakes["QH"], charged)
	}

	// serialização total: os preços observados têm de ser exatamente a
	// sequência serial de escalada — nunca dois placements vendo o mesmo
	// snapshot obsoleto de um estado que já mudou
	cfg := pricing.Config{BasePriceCents: 1000, StepCents: 100, ThresholdCents: 1000}
	cumulative := int64(0)
	for i := 0; i < n; i++ {
		p := pricing.PriceFor(cfg, cumulative)
		if observed[p] == 0 {
			t.Fatalf("preço %d esperado na posição serial %d não foi observado: %v", p, i, observed)
		}
		observed[p]--
		cumulative += p
	}

	// o preço final reflete todo o acumulado
	if p, _ := prices.CurrentPrice("QH"); p != pricing.PriceFor(cfg, charged) {
		t.Fatalf("preço final = %d, want %d", p, pricing.PriceFor(cfg, charged))
	}
}

func TestPlacePriceSnapshotStableWithinPlacement(t *testing.T) {
	now := time.Now().UTC()
	store := newMemStore()
	cur := openRoundAt(now)
	_ = store.CreateRound(context.Background(), cur)
	store.fund("alice", 1_000_000)

	prices := pricing.NewEngine(pricing.DefaultCatalog(), pricing.Config{
		BasePriceCents: 1000,
		StepCents:      100,
		ThresholdCents: 1000,
	})
	l := newTestLedger(store, prices, cur, time.Second)

	// quantity alta cruzaria vários degraus, mas todas as unidades do par
	// pagam o preço vigente na aceitação
	res, err := l.Place(context.Background(), "alice", cur.ID, []PlacePair{{OutcomeID: "JD", Quantity: 5}})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if res.TotalCents != 5000 {
		t.Fatalf("total = %d, want 5*1000", res.TotalCents)
	}

	// o próximo placement já vê o preço pós-escalada
	if p, _ := prices.CurrentPrice("JD"); p != 1500 {
		t.Fatalf("preço pós-placement = %d, want 1500", p)
	}
}
