package ws

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartRedisSubscriber inicia uma goroutine que escuta o canal Redis Pub/Sub
// de eventos de rodada e repassa cada mensagem crua para o hub.
//
// O broadcaster publica os envelopes já serializados; o hub só faz fan-out,
// então múltiplas instâncias do serviço compartilham o mesmo plano de
// broadcast via Redis.
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				hub.Broadcast([]byte(msg.Payload))
			}
		}
	}()
	log.Info("ws redis subscriber started", zap.String("channel", channel))
}
