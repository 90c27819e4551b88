package pricing

import "testing"

func testConfig() Config {
	return Config{BasePriceCents: 1000, StepCents: 100, ThresholdCents: 50000}
}

func TestPriceForSteps(t *testing.T) {
	cfg := testConfig()

	cases := []struct {
		staked int64
		want   int64
	}{
		{0, 1000},
		{1, 1000},
		{49999, 1000},
		{50000, 1100},
		{99999, 1100},
		{100000, 1200},
		{250000, 1500},
	}
	for _, c := range cases {
		if got := PriceFor(cfg, c.staked); got != c.want {
			t.Fatalf("PriceFor(staked=%d) = %d, want %d", c.staked, got, c.want)
		}
	}
}

func TestPriceForMonotonic(t *testing.T) {
	cfg := testConfig()
	prev := int64(0)
	for staked := int64(0); staked <= 500000; staked += 7919 {
		p := PriceFor(cfg, staked)
		if p < prev {
			t.Fatalf("price decreased: staked=%d price=%d prev=%d", staked, p, prev)
		}
		prev = p
	}
}

func TestPriceForDisabledThreshold(t *testing.T) {
	cfg := Config{BasePriceCents: 1000, StepCents: 100, ThresholdCents: 0}
	if got := PriceFor(cfg, 1_000_000); got != 1000 {
		t.Fatalf("threshold desligado deveria manter o preço base, got %d", got)
	}
}

func TestEnginePriceEscalation(t *testing.T) {
	e := NewEngine(DefaultCatalog(), testConfig())

	p, err := e.CurrentPrice("AS")
	if err != nil {
		t.Fatalf("CurrentPrice: %v", err)
	}
	if p != 1000 {
		t.Fatalf("preço inicial = %d, want 1000", p)
	}

	// cruza um degrau inteiro de escalada
	e.RecordStake("AS", 50000)
	p, _ = e.CurrentPrice("AS")
	if p != 1100 {
		t.Fatalf("preço pós-degrau = %d, want 1100", p)
	}

	// escalada é por outcome: os demais ficam no base
	p, _ = e.CurrentPrice("KS")
	if p != 1000 {
		t.Fatalf("escalada vazou para outro outcome: KS = %d", p)
	}
}

func TestEngineUnknownOutcome(t *testing.T) {
	e := NewEngine(DefaultCatalog(), testConfig())
	if _, err := e.CurrentPrice("ZZ"); err == nil {
		t.Fatal("esperava erro para outcome desconhecido")
	}
}

func TestEngineResetForRound(t *testing.T) {
	e := NewEngine(DefaultCatalog(), testConfig())
	e.RecordStake("QD", 120000)
	if p, _ := e.CurrentPrice("QD"); p == 1000 {
		t.Fatal("stake não refletiu no preço antes do reset")
	}

	e.ResetForRound()
	if p, _ := e.CurrentPrice("QD"); p != 1000 {
		t.Fatalf("reset deveria voltar ao base, got %d", p)
	}
}

func TestEngineRestore(t *testing.T) {
	e := NewEngine(DefaultCatalog(), testConfig())
	e.Restore(map[string]int64{"10H": 100000, "JC": 50000})

	if p, _ := e.CurrentPrice("10H"); p != 1200 {
		t.Fatalf("10H restaurado = %d, want 1200", p)
	}
	if p, _ := e.CurrentPrice("JC"); p != 1100 {
		t.Fatalf("JC restaurado = %d, want 1100", p)
	}
	if p, _ := e.CurrentPrice("AS"); p != 1000 {
		t.Fatalf("AS sem stake = %d, want 1000", p)
	}
}

func TestEngineSnapshot(t *testing.T) {
	e := NewEngine(DefaultCatalog(), testConfig())
	e.RecordStake("AD", 75000)

	snap := e.Snapshot()
	if len(snap) != e.Catalog().Len() {
		t.Fatalf("snapshot com %d outcomes, want %d", len(snap), e.Catalog().Len())
	}
	for _, s := range snap {
		if s.ID == "AD" {
			if s.StakedCents != 75000 {
				t.Fatalf("AD staked = %d, want 75000", s.StakedCents)
			}
			if s.PriceCents != 1100 {
				t.Fatalf("AD price = %d, want 1100", s.PriceCents)
			}
			return
		}
	}
	t.Fatal("AD ausente do snapshot")
}
