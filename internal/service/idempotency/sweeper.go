package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultSweepBatch    = 500
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_idempotency_sweep_runs_total",
		Help: "Idempotency key sweep runs grouped by result.",
	}, []string{"result"})
	sweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_idempotency_swept_keys_total",
		Help: "Expired idempotency keys removed by the sweeper.",
	})
	lastSweepRemoved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_idempotency_last_sweep_removed",
		Help: "Keys removed during the most recent sweep.",
	})
)

// Sweeper удаляет просроченные idempotency-ключи checkout-запросов.
// Пока ключ жив, повтор запроса возвращает сохранённый чек; после TTL
// ключ можно переиспользовать, и хранить запись больше незачем.
type Sweeper struct {
	keys      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
}

// SweepOption настраивает Sweeper.
type SweepOption func(*Sweeper)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) SweepOption {
	return func(s *Sweeper) { s.logger = logger }
}

// WithInterval задаёт период между проходами.
func WithInterval(interval time.Duration) SweepOption {
	return func(s *Sweeper) { s.interval = interval }
}

// WithBatchSize задаёт, сколько ключей удаляется одним запросом к хранилищу.
func WithBatchSize(batchSize int) SweepOption {
	return func(s *Sweeper) { s.batchSize = batchSize }
}

// NewSweeper создаёт sweeper поверх хранилища idempotency-ключей.
func NewSweeper(keys domain.IdempotencyRepository, options ...SweepOption) *Sweeper {
	s := &Sweeper{
		keys:      keys,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatch,
	}
	for _, option := range options {
		option(s)
	}

	if s.logger == nil {
		s.logger = log.WithField("component", "idempotency-sweeper")
	}
	if s.interval <= 0 {
		s.interval = defaultSweepInterval
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultSweepBatch
	}
	return s
}

// Run выполняет проходы очистки до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.keys == nil {
		s.logger.Warn("idempotency sweeper is disabled: key store is nil")
		return
	}

	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.Sweep(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}

	sweepRuns.WithLabelValues("ok").Inc()
	lastSweepRemoved.Set(float64(removed))
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("expired idempotency keys swept")
	}
}

// Sweep удаляет все ключи, чей TTL истёк к моменту now, порциями batchSize,
// и возвращает суммарное число удалённых записей.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		removed, err := s.keys.DeleteExpired(now, s.batchSize)
		if err != nil {
			return total, err
		}

		total += removed
		if removed > 0 {
			sweptKeys.Add(float64(removed))
		}
		if removed < s.batchSize {
			return total, nil
		}
	}
}
