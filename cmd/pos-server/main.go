package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/app"
)

const (
	envHTTPAddr     = "POS_HTTP_ADDR"
	envMetricsAddr  = "POS_METRICS_ADDR"
	envPostgresDSN  = "POS_POSTGRES_DSN"
	envKafkaBrokers = "KAFKA_BROKERS"
	envCurrency     = "POS_CURRENCY"
	envTaxRate      = "POS_TAX_RATE"
	envOperatorID   = "POS_OPERATOR_ID"
	envOperatorName = "POS_OPERATOR_NAME"
)

// envLookup абстрагирует os.LookupEnv для тестируемости.
type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
}

// readConfigFromEnv формирует конфигурацию приложения из переменных окружения.
// Невалидные значения не прерывают запуск: остаётся значение по умолчанию,
// а проблема попадает в warnings.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	if v, ok := lookup(envHTTPAddr); ok && strings.TrimSpace(v) != "" {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envMetricsAddr); ok && strings.TrimSpace(v) != "" {
		cfg.MetricsAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup(envPostgresDSN); ok && strings.TrimSpace(v) != "" {
		cfg.PostgresDSN = strings.TrimSpace(v)
	}
	if v, ok := lookup(envKafkaBrokers); ok && strings.TrimSpace(v) != "" {
		cfg.KafkaBrokers = strings.TrimSpace(v)
	}
	if v, ok := lookup(envCurrency); ok && strings.TrimSpace(v) != "" {
		cfg.Currency = strings.ToUpper(strings.TrimSpace(v))
	}
	if v, ok := lookup(envTaxRate); ok {
		rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || rate < 0 || rate >= 1 {
			warnings = append(warnings, fmt.Sprintf("%s=%q: must be a fraction in [0,1)", envTaxRate, v))
		} else {
			cfg.TaxRate = rate
		}
	}
	if v, ok := lookup(envOperatorID); ok && strings.TrimSpace(v) != "" {
		cfg.OperatorID = strings.TrimSpace(v)
	}
	if v, ok := lookup(envOperatorName); ok && strings.TrimSpace(v) != "" {
		cfg.OperatorName = strings.TrimSpace(v)
	}

	return cfg, warnings
}

func main() {
	setupLogger()
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"currency":     cfg.Currency,
		"tax_rate":     cfg.TaxRate,
	}).Info("запускаем POS сервис")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("POS сервис остановлен")
}
