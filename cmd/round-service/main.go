package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/card-round-platform-poc/internal/round-service/auth"
	"github.com/radieske/card-round-platform-poc/internal/round-service/broadcast"
	"github.com/radieske/card-round-platform-poc/internal/round-service/engine"
	rhttp "github.com/radieske/card-round-platform-poc/internal/round-service/http"
	"github.com/radieske/card-round-platform-poc/internal/round-service/pricing"
	"github.com/radieske/card-round-platform-poc/internal/round-service/producer"
	"github.com/radieske/card-round-platform-poc/internal/round-service/repo"
	"github.com/radieske/card-round-platform-poc/internal/round-service/wallet"
	"github.com/radieske/card-round-platform-poc/internal/round-service/ws"
	sharedcache "github.com/radieske/card-round-platform-poc/internal/shared/cache"
	"github.com/radieske/card-round-platform-poc/internal/shared/config"
	"github.com/radieske/card-round-platform-poc/internal/shared/db"
	"github.com/radieske/card-round-platform-poc/internal/shared/kafka"
	"github.com/radieske/card-round-platform-poc/internal/shared/logger"
	"github.com/radieske/card-round-platform-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New("round-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("env", cfg.Env))

	// Postgres: rodadas, apostas, carteiras, liquidações
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: sessões, Pub/Sub de broadcast
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers (bid_accepted / round_settled)
	bidWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBidAccepted)
	defer bidWriter.Close()
	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundSettled)
	defer settledWriter.Close()
	publisher := producer.NewKafkaPublisher(bidWriter, settledWriter)

	// Catálogo fixo + engine de preços
	catalog := pricing.DefaultCatalog()
	prices := pricing.NewEngine(catalog, pricing.Config{
		BasePriceCents: cfg.BasePriceCents,
		StepCents:      cfg.PriceStepCents,
		ThresholdCents: cfg.PriceStepThreshold,
	})

	// Broadcaster: assinantes locais + Redis Pub/Sub pro hub WS
	bc := broadcast.New(log, rdb, cfg.BroadcastChannel)

	repository := repo.NewPostgres(pg)
	wallets := wallet.NewPostgres(pg)

	settler := engine.NewSettler(log, repository, catalog, bc, cfg.PayoutMultiplier)
	settler.Pub = publisher

	sched := engine.NewScheduler(log, repository, settler, prices, bc, engine.SchedulerConfig{
		BiddingWindow: cfg.BiddingWindow,
		TotalWindow:   cfg.TotalWindow,
		Tick:          cfg.TickInterval,
	})
	bc.SetSnapshotSource(sched.Snapshot)

	ledger := engine.NewLedger(log, repository, prices, sched.Current, cfg.PlacementWait)
	ledger.Pub = publisher

	// Métricas Prometheus do engine
	bidsAccepted := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_bids_accepted_total", Help: "apostas aceitas"})
	stakeCents := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_stake_cents_total", Help: "centavos apostados"})
	bidsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "round_bids_rejected_total", Help: "placements recusados por kind"}, []string{"kind"})
	settlements := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_settlements_total", Help: "rodadas liquidadas"})
	payoutCents := prometheus.NewCounter(prometheus.CounterOpts{Name: "round_payout_cents_total", Help: "centavos pagos em payouts"})
	prometheus.MustRegister(bidsAccepted, stakeCents, bidsRejected, settlements, payoutCents)

	ledger.OnAccepted = func(bids int, totalCents int64) {
		bidsAccepted.Add(float64(bids))
		stakeCents.Add(float64(totalCents))
	}
	ledger.OnRejected = func(kind string) { bidsRejected.WithLabelValues(kind).Inc() }
	settler.OnSettled = func(rec *repo.SettlementRecord) {
		settlements.Inc()
		payoutCents.Add(float64(rec.TotalPayoutCents))
	}

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Hub WS alimentado pelo canal Redis de broadcast
	hub := ws.NewHub(func(r *http.Request) bool { return true }, bc.Snapshot)
	ws.StartRedisSubscriber(ctx, log, rdb, cfg.BroadcastChannel, hub)

	validator := auth.NewRedisValidator(rdb, cfg.SessionKeyPrefix)
	api := rhttp.NewServer(log, ledger, settler, wallets, bc.Snapshot, validator, hub.HandleWS)

	// Servidor de métricas e health check
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(hctx context.Context) error {
		if err := pg.PingContext(hctx); err != nil {
			return err
		}
		return rdb.Ping(hctx).Err()
	})
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// Scheduler de rodadas
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("scheduler stopped", zap.Error(err))
		}
	}()

	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}
	go func() {
		<-ctx.Done()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = apiSrv.Shutdown(shCtx)
	}()

	log.Info("round-service listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api srv", zap.Error(err))
	}
	log.Info("round-service stopped")
}
