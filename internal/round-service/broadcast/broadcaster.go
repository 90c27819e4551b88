package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// subscriberBuffer limita a fila de cada assinante local; quem não drena
// perde eventos (entrega at-most-once, resync via Snapshot).
const subscriberBuffer = 16

// RedisPublisher é o que o broadcaster precisa do cliente Redis.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Broadcaster faz fan-out dos eventos de rodada para assinantes locais
// (canais Go) e para o canal Redis Pub/Sub consumido pelo hub WebSocket.
// A emissão segue a ordem real das mudanças de estado: o scheduler é o
// único produtor.
type Broadcaster struct {
	log     *zap.Logger
	rdb     RedisPublisher
	channel string

	mu         sync.RWMutex
	subs       map[int]chan Event
	nextSubID  int
	lastResult *ResultDeclared
	snapshotFn func() Snapshot
}

// New cria o broadcaster; rdb pode ser nil em testes (só fan-out local).
func New(log *zap.Logger, rdb RedisPublisher, channel string) *Broadcaster {
	return &Broadcaster{
		log:     log,
		rdb:     rdb,
		channel: channel,
		subs:    make(map[int]chan Event),
	}
}

// SetSnapshotSource injeta a fonte do snapshot (o scheduler).
func (b *Broadcaster) SetSnapshotSource(fn func() Snapshot) {
	b.mu.Lock()
	b.snapshotFn = fn
	b.mu.Unlock()
}

// Subscribe registra um assinante local e retorna o canal de recepção
// e a função de cancelamento.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish emite um evento para todos os assinantes locais (melhor esforço,
// descarta se a fila do assinante estiver cheia) e publica no Redis.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	if ev.Type == TypeResultDeclared {
		if rd, ok := ev.Payload.(ResultDeclared); ok {
			b.lastResult = &rd
		}
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// assinante lento: descarta, resync cobre
		}
	}
	b.mu.Unlock()

	if b.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := b.rdb.Publish(pctx, b.channel, payload).Err(); err != nil {
		b.log.Warn("broadcast redis publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Snapshot devolve o estado corrente completo para resync de late-joiners.
func (b *Broadcaster) Snapshot() Snapshot {
	b.mu.RLock()
	fn := b.snapshotFn
	last := b.lastResult
	b.mu.RUnlock()

	var snap Snapshot
	if fn != nil {
		snap = fn()
	}
	snap.LastResult = last
	return snap
}
