package pricing

import "math/rand"

// Outcome é uma entrada fixa do catálogo de cartas apostáveis.
type Outcome struct {
	ID    string `json:"id"`    // ex: "10D"
	Rank  string `json:"rank"`  // "A", "K", "Q", "J", "10"
	Suit  string `json:"suit"`  // "S", "H", "D", "C"
	Label string `json:"label"` // ex: "10♦"
}

// Catalog é o conjunto fixo de outcomes de uma instância do jogo.
// Imutável após a construção; seguro para leitura concorrente.
type Catalog struct {
	outcomes []Outcome
	byID     map[string]Outcome
}

var suitSymbols = map[string]string{
	"S": "♠",
	"H": "♥",
	"D": "♦",
	"C": "♣",
}

// DefaultCatalog monta o catálogo padrão: ranks {A,K,Q,J,10} x 4 naipes.
func DefaultCatalog() *Catalog {
	ranks := []string{"A", "K", "Q", "J", "10"}
	suits := []string{"S", "H", "D", "C"}

	c := &Catalog{byID: make(map[string]Outcome)}
	for _, r := range ranks {
		for _, s := range suits {
			o := Outcome{
				ID:    r + s,
				Rank:  r,
				Suit:  s,
				Label: r + suitSymbols[s],
			}
			c.outcomes = append(c.outcomes, o)
			c.byID[o.ID] = o
		}
	}
	return c
}

// Get retorna o outcome pelo id.
func (c *Catalog) Get(id string) (Outcome, bool) {
	o, ok := c.byID[id]
	return o, ok
}

// All retorna os outcomes na ordem de construção.
func (c *Catalog) All() []Outcome {
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}

// Len retorna o tamanho do catálogo.
func (c *Catalog) Len() int { return len(c.outcomes) }

// Draw sorteia um outcome uniformemente do catálogo.
// Usado pelo fallback pseudo-aleatório quando nenhum resultado
// de operador foi informado até o prazo de liquidação.
func (c *Catalog) Draw(r *rand.Rand) Outcome {
	return c.outcomes[r.Intn(len(c.outcomes))]
}
