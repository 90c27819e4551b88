package cache

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/card-round-platform-poc/pkg/contracts/events"
)

// recentResultsKey guarda os últimos resultados declarados (lista Redis)
const recentResultsKey = "round:results:recent"

// RedisCache mantém a lista de resultados recentes consultada pelas
// superfícies de leitura (fora do core).
type RedisCache struct {
	Client *redis.Client
	Keep   int64 // quantos resultados manter
}

// NewRedisCache cria o cache de resultados recentes.
func NewRedisCache(c *redis.Client, keep int64) *RedisCache {
	return &RedisCache{Client: c, Keep: keep}
}

// PushResult adiciona um resultado no topo da lista e apara o excedente.
func (r *RedisCache) PushResult(ctx context.Context, e events.RoundSettled) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := r.Client.TxPipeline()
	pipe.LPush(ctx, recentResultsKey, b)
	pipe.LTrim(ctx, recentResultsKey, 0, r.Keep-1)
	_, err = pipe.Exec(ctx)
	return err
}
