package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("invalid session token")

// Validator valida a identidade do chamador a partir de um token de sessão.
// A emissão de credenciais é externa: aqui só se consome "validar identidade".
type Validator interface {
	UserID(ctx context.Context, token string) (string, error)
}

// RedisValidator resolve tokens em chaves de sessão no Redis
// (chave "{prefix}{token}" => userID).
type RedisValidator struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisValidator(rdb *redis.Client, prefix string) *RedisValidator {
	return &RedisValidator{rdb: rdb, prefix: prefix}
}

func (v *RedisValidator) UserID(ctx context.Context, token string) (string, error) {
	userID, err := v.rdb.Get(ctx, v.prefix+token).Result()
	if err == redis.Nil {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

type ctxKey struct{}

// Middleware extrai o bearer token, valida via Validator e injeta o userID
// no contexto da requisição; 401 quando inválido ou ausente.
func Middleware(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}
			userID, err := v.UserID(r.Context(), token)
			if err != nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID injeta o userID no contexto.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFrom extrai o userID validado do contexto.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// fallback pra clientes simples
	return r.Header.Get("X-Session-Token")
}
