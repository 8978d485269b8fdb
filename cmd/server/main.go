package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vitaex/internal/agent"
	"vitaex/internal/agent/processing"
	"vitaex/internal/agents/curator"
	"vitaex/internal/agents/ingestion"
	"vitaex/internal/agents/knowledge"
	"vitaex/internal/agents/oversight"
	"vitaex/internal/agents/protocol"
	"vitaex/internal/agents/simulation"
	"vitaex/internal/agents/twin"
	"vitaex/internal/audit"
	"vitaex/internal/consent"
	"vitaex/internal/event"
	"vitaex/internal/eventlog"
	"vitaex/internal/orchestrator"
	"vitaex/internal/platform/config"
	"vitaex/internal/platform/httpserver"
	"vitaex/internal/platform/logger"
	"vitaex/internal/platform/metrics"
	"vitaex/internal/platform/middleware"
	"vitaex/internal/platform/postgres"
	"vitaex/internal/platform/redis"
	"vitaex/internal/storage/graphstore"
	"vitaex/internal/storage/timeseries"
	"vitaex/internal/storage/vector"
	httptransport "vitaex/internal/transport/http"
	id "vitaex/pkg/domain"
)

// processingRetention bounds how long completed idempotency claims are kept
// in redis. Long enough to absorb any realistic redelivery window.
const processingRetention = 7 * 24 * time.Hour

// sweepInterval is how often stale runs are checked against JoinTimeout and
// ReviewExpiry.
const sweepInterval = 30 * time.Second

// main wires the stores, the agents, the orchestrator, and the HTTP surface,
// then runs everything under one errgroup until a signal arrives. Business
// logic lives in the internal packages; main only chooses implementations
// from configuration.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	rdb, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var elog eventlog.Log
	if len(cfg.KafkaBrokers) > 0 {
		elog, err = eventlog.NewKafka(cfg.KafkaBrokers, log)
		if err != nil {
			return err
		}
	} else {
		elog = eventlog.NewMemory(log)
	}
	defer elog.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	// Stores: postgres when configured, redis for the hot paths when
	// configured, in-memory otherwise.
	var (
		auditStore   audit.Store           = audit.NewInMemoryStore()
		consentStore consent.Store         = consent.NewInMemoryStore()
		ledger       processing.Store      = processing.NewInMemoryStore()
		series       timeseries.Store      = timeseries.NewInMemoryStore()
		graph        graphstore.Store      = graphstore.NewInMemoryStore()
		vectors      vector.Store          = vector.NewInMemoryStore()
		twins        twin.Store            = twin.NewInMemoryStore()
		reviewStore  oversight.Store       = oversight.NewInMemoryStore()
		runStore     orchestrator.RunStore = orchestrator.NewInMemoryRunStore()
	)
	if pool != nil {
		auditStore = audit.NewPostgresStore(pool)
		consentStore = consent.NewPostgresStore(pool)
		ledger = processing.NewPostgresStore(pool)
		series = timeseries.NewPostgresStore(pool)
		graph = graphstore.NewPostgresStore(pool)
		vectors = vector.NewPostgresStore(pool)
		twins = twin.NewPostgresStore(pool)
		reviewStore = oversight.NewPostgresStore(pool)
		runStore = orchestrator.NewPostgresRunStore(pool)
	}
	if rdb != nil {
		ledger = processing.NewRedisStore(rdb.Client, processingRetention)
	}

	consentCache := consent.NewMemoryCache(cfg.ConsentCacheTTL)
	if rdb != nil {
		consentCache = consent.NewRedisCache(rdb.Client, cfg.ConsentCacheTTL)
	}

	auditPub := audit.NewPublisher(auditStore, log)
	auditPub.MirrorTo(elog)
	consentSvc := consent.NewService(consentStore, consentCache, auditPub, m)
	reviewSvc := oversight.NewService(reviewStore, elog, auditPub, cfg.ReviewersRequired)

	policy := agent.RetryPolicy{
		MaxAttempts:   cfg.RetryMaxAttempts,
		BackoffBase:   cfg.RetryBackoffBase,
		BackoffCap:    cfg.RetryBackoffCap,
		HandleTimeout: cfg.HandleTimeout,
	}
	registry := agent.NewRegistry(elog, ledger, auditPub, m, log, policy, cfg.ConsumerGroup)
	for _, h := range []agent.Handler{
		ingestion.New(series),
		knowledge.New(graph, vectors),
		twin.New(series, twins),
		simulation.New(twins),
		protocol.New(vectors, graph, nil),
		curator.New(),
		oversight.NewAgent(reviewSvc),
	} {
		if err := registry.Register(h); err != nil {
			return err
		}
	}

	orch, err := orchestrator.New(orchestrator.DefaultGraphs(), runStore, consentSvc, elog,
		auditPub, m, log, cfg.JoinTimeout, cfg.ReviewExpiry)
	if err != nil {
		return err
	}

	ingest := func(ctx context.Context, subject id.SubjectID, payload json.RawMessage) (id.CorrelationID, error) {
		correlationID := id.NewCorrelationID()
		ev, err := event.New(event.TopicIngestionRaw, "ingestion.raw", subject, correlationID, payload)
		if err != nil {
			return id.CorrelationID{}, err
		}
		if err := elog.Publish(ctx, ev); err != nil {
			return id.CorrelationID{}, err
		}
		m.EventsPublished.WithLabelValues(event.TopicIngestionRaw).Inc()
		return correlationID, nil
	}

	handler := httptransport.NewHandler(log, consentSvc, orch, reviewSvc, auditPub, ingest, registry, elog.Health)
	router := httptransport.NewRouter(handler, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	chain := middleware.RequestID(
		middleware.RequestTime(
			middleware.Recovery(log)(
				middleware.Logger(log)(router))))
	srv := httpserver.New(cfg.Addr, chain)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return registry.Start(ctx)
	})
	g.Go(func() error {
		err := elog.Subscribe(ctx, cfg.ConsumerGroup+"-orchestrator", orch.Topics(), orch.Process)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		orch.RunSweeper(ctx, sweepInterval)
		return nil
	})
	g.Go(func() error {
		log.Info("vitaex listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
