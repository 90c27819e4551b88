package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/history-worker/cache"
	"github.com/radieske/card-round-platform-poc/internal/history-worker/repository"
	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// Processor consome os streams de apostas e liquidações e materializa o
// read model (Postgres) e o cache de resultados recentes (Redis).
// Callbacks de métricas podem ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log         *zap.Logger
	Bids        *kafka.Reader // tópico bid_accepted
	Settlements *kafka.Reader // tópico round_settled
	Repo        *repository.PostgresRepo
	Cache       *cache.RedisCache
	DLQ         *kafka.Writer // opcional: mensagens não decodificáveis

	OnConsumed func(topic string) // métricas (counter++)
	OnPersist  func(topic string) // métricas
	OnError    func(stage string) // métricas por fase
}

// Run inicia os dois loops de consumo e bloqueia até o contexto encerrar.
func (p *Processor) Run(ctx context.Context) error {
	errc := make(chan error, 2)
	go func() { errc <- p.runBids(ctx) }()
	go func() { errc <- p.runSettlements(ctx) }()

	// primeiro erro/cancelamento encerra o worker
	return <-errc
}

// runBids consome bid_accepted e acumula agregados por outcome.
func (p *Processor) runBids(ctx context.Context) error {
	for {
		m, err := p.Bids.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.String("topic", "bid_accepted"), zap.Error(err))
			p.errStage("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		p.consumed("bid_accepted")

		var ev events.BidAccepted
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid bid_accepted message", zap.Error(err))
			p.errStage("decode")
			p.toDLQ(ctx, m)
			continue
		}

		if err := p.Repo.ApplyBid(ctx, ev); err != nil {
			p.Log.Warn("db apply bid failed", zap.String("bidId", ev.BidID), zap.Error(err))
			p.errStage("db_bid")
			continue
		}
		p.persisted("bid_accepted")
	}
}

// runSettlements consome round_settled, grava o histórico e atualiza o cache.
func (p *Processor) runSettlements(ctx context.Context) error {
	for {
		m, err := p.Settlements.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.String("topic", "round_settled"), zap.Error(err))
			p.errStage("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		p.consumed("round_settled")

		var ev events.RoundSettled
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			p.Log.Warn("invalid round_settled message", zap.Error(err))
			p.errStage("decode")
			p.toDLQ(ctx, m)
			continue
		}

		if err := p.Repo.InsertResult(ctx, ev); err != nil {
			p.Log.Warn("db insert result failed", zap.String("roundId", ev.RoundID), zap.Error(err))
			p.errStage("db_result")
			continue
		}

		// cache é melhor esforço; não bloqueia o histórico
		if err := p.Cache.PushResult(ctx, ev); err != nil {
			p.Log.Warn("redis push result failed", zap.Error(err))
			p.errStage("cache")
		}
		p.persisted("round_settled")
	}
}

// toDLQ encaminha mensagens venenosas pra fila morta, se configurada.
func (p *Processor) toDLQ(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := p.DLQ.WriteMessages(wctx, kafka.Message{Key: m.Key, Value: m.Value}); err != nil {
		p.Log.Warn("dlq write failed", zap.Error(err))
	}
}

func (p *Processor) consumed(topic string) {
	if p.OnConsumed != nil {
		p.OnConsumed(topic)
	}
}

func (p *Processor) persisted(topic string) {
	if p.OnPersist != nil {
		p.OnPersist(topic)
	}
}

func (p *Processor) errStage(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
