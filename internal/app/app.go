package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/poscore/internal/health"
	"github.com/vladislavdragonenkov/poscore/internal/service/checkout"
	"github.com/vladislavdragonenkov/poscore/internal/service/httpapi"
	"github.com/vladislavdragonenkov/poscore/internal/service/identity"
	idemsvc "github.com/vladislavdragonenkov/poscore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/poscore/internal/service/outbox"
	"github.com/vladislavdragonenkov/poscore/internal/version"
)

// Config описывает настройки запуска кассового сервиса.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой означает in-memory хранилище.
	PostgresDSN  string
	KafkaBrokers string

	Currency string
	TaxRate  float64

	OperatorID   string
	OperatorName string
}

// DefaultConfig возвращает базовые настройки: одиночная касса,
// in-memory хранилище, НДС 18%.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:     ":8080",
		MetricsAddr:  ":9090",
		Currency:     "INR",
		TaxRate:      0.18,
		OperatorID:   "op-default",
		OperatorName: "Default Operator",
	}
}

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Kafka опционален: без брокера события копятся в outbox.
	kafkaRes, _ := setupKafka(cfg.KafkaBrokers, logger)

	var orchestrator checkout.Orchestrator
	if kafkaRes != nil {
		orchestrator = checkout.NewOrchestratorWithKafka(
			deps.Orders, deps.Products, deps.Inventory, deps.Outbox, deps.Timeline,
			identity.NewStaticProvider(cfg.OperatorID, cfg.OperatorName),
			cfg.Currency, cfg.TaxRate, kafkaRes.producer, logger,
		)
	} else {
		orchestrator = checkout.NewOrchestrator(
			deps.Orders, deps.Products, deps.Inventory, deps.Outbox, deps.Timeline,
			identity.NewStaticProvider(cfg.OperatorID, cfg.OperatorName),
			cfg.Currency, cfg.TaxRate, logger,
		)
	}

	// Outbox relay работает только при настроенном Kafka:
	// без брокера события остаются в outbox и доступны через Stats.
	if kafkaRes != nil {
		relay := outbox.NewRelay(deps.Outbox, kafkaRes.events,
			outbox.WithLogger(logger.WithField("component", "outbox-relay")),
			outbox.WithDLQPublisher(kafkaRes.dlq),
		)
		go relay.Run(ctx)
	}

	sweeper := idemsvc.NewSweeper(deps.Idempotency,
		idemsvc.WithLogger(logger.WithField("component", "idempotency-sweeper")),
	)
	go sweeper.Run(ctx)

	apiMux := http.NewServeMux()
	apiHandler := httpapi.NewHandler(
		orchestrator, deps.Orders, deps.Products, deps.Timeline, deps.Idempotency,
		logger.WithField("component", "httpapi"),
	)
	apiHandler.Register(apiMux)

	healthHandler := healthcheck.NewHandler(version.Build())
	if deps.Store != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewCheckFunc("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(pingCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: apiMux}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		kafkaRes.close(logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		kafkaRes.close(logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
