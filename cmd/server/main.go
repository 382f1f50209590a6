package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpapi "github.com/execution-hub/agent-orchestrator/internal/api/http"
	"github.com/execution-hub/agent-orchestrator/internal/application/bus"
	"github.com/execution-hub/agent-orchestrator/internal/application/memory"
	"github.com/execution-hub/agent-orchestrator/internal/application/monitor"
	"github.com/execution-hub/agent-orchestrator/internal/application/orchestrator"
	"github.com/execution-hub/agent-orchestrator/internal/application/registry"
	"github.com/execution-hub/agent-orchestrator/internal/application/workers"
	"github.com/execution-hub/agent-orchestrator/internal/config"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/postgres"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/sse"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// long-term memory
	var persister memory.Persister
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		persister = postgres.NewMemoryRepository(pool)
	} else {
		logger.Info().Msg("DATABASE_URL not set; long-term memory is process local")
	}

	// telemetry
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(promReg)
	sseHub := sse.NewHub()
	publisher := event.Fanout(sseHub, metrics, event.PublisherFunc(func(e *event.Event) {
		logger.Debug().Str("event", string(e.Type)).Str("agent", e.Agent).Str("instance_id", e.InstanceID).Msg("event")
	}))

	// services
	reg := registry.NewRegistry(publisher, logger)
	store := memory.NewStore(memory.Config{}, persister, logger)
	messageBus := bus.NewBus(reg, store, publisher, cfg.BusTick, logger)

	var router *orchestrator.Orchestrator
	collector := telemetry.NewCollector(
		reg,
		telemetry.InFlightFunc(func() int64 { return router.InFlight() }),
		messageBus,
		telemetry.GopsutilStats,
	)
	mon, err := monitor.NewMonitor(cfg.Monitor(), reg, collector, publisher, logger)
	if err != nil {
		log.Fatalf("monitor config error: %v", err)
	}
	router = orchestrator.NewOrchestrator(cfg.Orchestrator(), reg, store, mon, metrics, logger)

	reg.AddListener(store)
	reg.AddListener(mon)
	reg.AddListener(collector)
	summary := reg.Initialize(workers.Catalog(workers.Options{
		Location: cfg.Location(),
		Attorney: cfg.Attorney,
	}))
	for name, reason := range summary.Failed {
		logger.Warn().Str("agent", name).Str("reason", reason).Msg("worker failed to register")
	}

	messageBus.Start(ctx)
	mon.Start(ctx)

	// API server
	apiServer := httpapi.NewServer(
		router,
		messageBus,
		mon,
		reg,
		store,
		sseHub,
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		cfg.APITokenHash,
	)

	// WriteTimeout stays unset so /v1/events can stream; other routes carry a
	// handler timeout.
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("shutting down")
	sseHub.Stop()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	mon.Stop()
	messageBus.Stop()
}
