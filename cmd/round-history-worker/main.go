package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/history-worker/cache"
	"github.com/radieske/card-round-platform-poc/internal/history-worker/consumer"
	"github.com/radieske/card-round-platform-poc/internal/history-worker/repository"
	sharedcache "github.com/radieske/card-round-platform-poc/internal/shared/cache"
	"github.com/radieske/card-round-platform-poc/internal/shared/config"
	"github.com/radieske/card-round-platform-poc/internal/shared/db"
	"github.com/radieske/card-round-platform-poc/internal/shared/kafka"
	"github.com/radieske/card-round-platform-poc/internal/shared/logger"
	"github.com/radieske/card-round-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("round-history-worker", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	repo := repository.NewPostgresRepo(pg)
	rcache := cache.NewRedisCache(rdb, 50)

	// Consumers Kafka (consumer group round-history)
	bidsReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBidAccepted, "round-history")
	defer bidsReader.Close()
	settledReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRoundSettled, "round-history")
	defer settledReader.Close()

	dlqWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettledDLQ)
	defer dlqWriter.Close()

	// Métricas Prometheus para monitoramento do processamento
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "history_messages_consumed_total", Help: "mensagens consumidas"}, []string{"topic"})
	persisted := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "history_db_writes_total", Help: "escritas no read model"}, []string{"topic"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "history_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Bids:        bidsReader,
		Settlements: settledReader,
		Repo:        repo,
		Cache:       rcache,
		DLQ:         dlqWriter,

		OnConsumed: func(topic string) { consumed.WithLabelValues(topic).Inc() },
		OnPersist:  func(topic string) { persisted.WithLabelValues(topic).Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return err
		}
		return rdb.Ping(hctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("round-history-worker started",
		zap.String("consume", cfg.TopicBidAccepted+","+cfg.TopicRoundSettled),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("round-history-worker stopped")
}
