package pricing

import (
	"math/rand"
	"testing"
)

func TestDefaultCatalogShape(t *testing.T) {
	c := DefaultCatalog()
	if c.Len() != 20 {
		t.Fatalf("catálogo com %d outcomes, want 20 (5 ranks x 4 naipes)", c.Len())
	}

	o, ok := c.Get("10D")
	if !ok {
		t.Fatal("10D ausente do catálogo")
	}
	if o.Rank != "10" || o.Suit != "D" || o.Label != "10♦" {
		t.Fatalf("10D = %+v", o)
	}

	if _, ok := c.Get("2S"); ok {
		t.Fatal("2S não deveria existir (catálogo é A,K,Q,J,10)")
	}

	// ids únicos
	seen := make(map[string]bool)
	for _, o := range c.All() {
		if seen[o.ID] {
			t.Fatalf("id duplicado: %s", o.ID)
		}
		seen[o.ID] = true
	}
}

func TestDrawStaysInCatalog(t *testing.T) {
	c := DefaultCatalog()
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		o := c.Draw(r)
		if _, ok := c.Get(o.ID); !ok {
			t.Fatalf("Draw retornou outcome fora do catálogo: %s", o.ID)
		}
	}
}
