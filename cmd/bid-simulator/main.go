package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
	rdto "github.com/radieske/card-round-platform-poc/internal/round-service/dto"
	sharedcache "github.com/radieske/card-round-platform-poc/internal/shared/cache"
	"github.com/radieske/card-round-platform-poc/internal/shared/config"
	"github.com/radieske/card-round-platform-poc/internal/shared/logger"
	"github.com/radieske/card-round-platform-poc/internal/shared/metrics"
)

// Métricas Prometheus para acompanhar o comportamento da carga simulada
var (
	bidsPlaced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_bids_placed_total",
		Help: "Apostas aceitas pelo round-service",
	})
	bidsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulator_bids_rejected_total",
		Help: "Apostas rejeitadas por tipo de erro",
	}, []string{"kind"})
	busyRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "simulator_busy_retries_total",
		Help: "Retentativas após resposta BUSY",
	})
)

// simUser representa um apostador sintético com sessão própria no Redis
type simUser struct {
	id    string
	token string
}

func main() {
	cfg := config.Load()
	log, err := logger.New("bid-simulator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	prometheus.MustRegister(bidsPlaced, bidsRejected, busyRetries)
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		return rdb.Ping(hctx).Err()
	})
	defer metricsSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpc := &http.Client{Timeout: 5 * time.Second}

	// Cria usuários sintéticos: grava a sessão no Redis e faz um depósito
	// inicial pela API pública, igual a um cliente real faria.
	users := make([]simUser, 0, cfg.SimulatorUsers)
	for i := 0; i < cfg.SimulatorUsers; i++ {
		u := simUser{
			id:    uuid.NewString(),
			token: uuid.NewString(),
		}
		if err := rdb.Set(ctx, cfg.SessionKeyPrefix+u.token, u.id, 24*time.Hour).Err(); err != nil {
			log.Fatal("seed session", zap.Error(err))
		}
		if err := deposit(ctx, httpc, cfg.RoundServiceURL, u, 100_000); err != nil {
			log.Fatal("initial deposit", zap.String("user", u.id), zap.Error(err))
		}
		users = append(users, u)
	}
	log.Info("simulated users ready", zap.Int("count", len(users)))

	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func(u simUser, seed int64) {
			defer wg.Done()
			runUser(ctx, log, httpc, cfg, u, rand.New(rand.NewSource(seed)))
		}(users[i], time.Now().UnixNano()+int64(i))
	}
	wg.Wait()
	log.Info("bid-simulator stopped")
}

// runUser fica num loop: consulta a rodada corrente e envia apostas
// aleatórias enquanto a janela estiver aberta.
func runUser(ctx context.Context, log *zap.Logger, httpc *http.Client, cfg config.Config, u simUser, rnd *rand.Rand) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(1+rnd.Intn(4)) * time.Second):
		}

		snap, err := currentRound(ctx, httpc, cfg.RoundServiceURL)
		if err != nil {
			log.Warn("fetch current round", zap.Error(err))
			continue
		}
		if snap.RoundID == "" || snap.IsBreak || len(snap.Outcomes) == 0 {
			continue
		}

		// Escolhe de 1 a 3 cartas distintas com quantidades pequenas
		n := 1 + rnd.Intn(3)
		picked := rnd.Perm(len(snap.Outcomes))[:n]
		pairs := make([]rdto.BidPair, 0, n)
		for _, idx := range picked {
			pairs = append(pairs, rdto.BidPair{
				OutcomeID: snap.Outcomes[idx].ID,
				Quantity:  int64(1 + rnd.Intn(3)),
			})
		}

		resp, err := placeBids(ctx, httpc, cfg.RoundServiceURL, u, rdto.PlaceBidsRequest{
			RoundID: snap.RoundID,
			Bids:    pairs,
		})
		if err != nil {
			log.Warn("place bids", zap.String("user", u.id), zap.Error(err))
			continue
		}
		if resp.OK {
			bidsPlaced.Inc()
			log.Debug("bids accepted",
				zap.String("user", u.id),
				zap.String("roundId", snap.RoundID),
				zap.Int64("totalCents", resp.TotalCents),
			)
			continue
		}
		bidsRejected.WithLabelValues(resp.ErrorKind).Inc()
		if resp.ErrorKind == "INSUFFICIENT_FUNDS" {
			// recarrega e segue no jogo
			if err := deposit(ctx, httpc, cfg.RoundServiceURL, u, 50_000); err != nil {
				log.Warn("top-up deposit", zap.String("user", u.id), zap.Error(err))
			}
		}
	}
}

// currentRound consulta o snapshot público da rodada corrente.
func currentRound(ctx context.Context, httpc *http.Client, baseURL string) (broadcast.Snapshot, error) {
	var snap broadcast.Snapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/rounds/current", nil)
	if err != nil {
		return snap, err
	}
	res, err := httpc.Do(req)
	if err != nil {
		return snap, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("current round: status %d", res.StatusCode)
	}
	return snap, json.NewDecoder(res.Body).Decode(&snap)
}

// placeBids envia o lote de apostas. Respostas BUSY (503) são retentadas
// com backoff limitado: o serviço serializa a colocação por rodada e pede
// que o cliente tente de novo em instantes.
func placeBids(ctx context.Context, httpc *http.Client, baseURL string, u simUser, body rdto.PlaceBidsRequest) (rdto.PlaceBidsResponse, error) {
	var out rdto.PlaceBidsResponse
	payload, err := json.Marshal(body)
	if err != nil {
		return out, err
	}

	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			busyRetries.Inc()
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/bids", bytes.NewReader(payload))
		if err != nil {
			return out, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+u.token)

		res, err := httpc.Do(req)
		if err != nil {
			return out, err
		}
		raw, err := io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return out, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("decode place bids response (status %d): %w", res.StatusCode, err)
		}
		if res.StatusCode == http.StatusServiceUnavailable {
			continue
		}
		return out, nil
	}
	return out, nil
}

// deposit credita saldo principal na carteira do usuário via API pública.
func deposit(ctx context.Context, httpc *http.Client, baseURL string, u simUser, amountCents int64) error {
	payload, err := json.Marshal(rdto.DepositRequest{
		AmountCents: amountCents,
		ExternalRef: "sim-" + uuid.NewString(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/wallet/deposit", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.token)

	res, err := httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("deposit: status %d", res.StatusCode)
	}
	return nil
}
