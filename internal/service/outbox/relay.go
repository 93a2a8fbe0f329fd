package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

const (
	defaultPollInterval = 1 * time.Second
	defaultBatchSize    = 100
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 50 * time.Millisecond

	// maxBackoff ограничивает паузу между попытками: касса не должна
	// копить часовые задержки доставки чековых событий.
	maxBackoff = 5 * time.Second
)

var (
	relayedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_checkout_outbox_relayed_total",
		Help: "Checkout outbox events relayed to the broker grouped by outcome.",
	}, []string{"outcome"})
	outboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_checkout_outbox_backlog",
		Help: "Checkout events waiting in the transactional outbox.",
	})
	outboxBacklogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_checkout_outbox_backlog_age_seconds",
		Help: "Age in seconds of the oldest unrelayed checkout event.",
	})
)

// Relay перекачивает события чеков из transactional outbox в брокер.
// Запись в outbox происходит в той же транзакции, что и чек, поэтому
// relay — единственное место, где событие покидает кассу.
type Relay struct {
	store     domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry

	interval    time.Duration
	batchSize   int
	maxAttempts int
	baseDelay   time.Duration
}

// RelayOption настраивает Relay.
type RelayOption func(*Relay)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

// WithDLQPublisher задаёт publisher мёртвых событий. Без него событие,
// исчерпавшее попытки, просто помечается failed в outbox.
func WithDLQPublisher(publisher domain.OutboxPublisher) RelayOption {
	return func(r *Relay) { r.dlq = publisher }
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) RelayOption {
	return func(r *Relay) { r.interval = interval }
}

// WithBatchSize задаёт, сколько событий забирается за один проход.
func WithBatchSize(batchSize int) RelayOption {
	return func(r *Relay) { r.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации до failed/DLQ.
func WithMaxAttempts(maxAttempts int) RelayOption {
	return func(r *Relay) { r.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт стартовую паузу backoff. Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) RelayOption {
	return func(r *Relay) { r.baseDelay = delay }
}

// NewRelay создаёт relay поверх outbox-хранилища и publisher.
func NewRelay(store domain.OutboxRepository, publisher domain.OutboxPublisher, options ...RelayOption) *Relay {
	r := &Relay{
		store:       store,
		publisher:   publisher,
		interval:    defaultPollInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}
	for _, option := range options {
		option(r)
	}

	if r.logger == nil {
		r.logger = log.WithField("component", "outbox-relay")
	}
	if r.interval <= 0 {
		r.interval = defaultPollInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.baseDelay < 0 {
		r.baseDelay = 0
	}
	return r
}

// Run опрашивает outbox до отмены ctx.
func (r *Relay) Run(ctx context.Context) {
	if r.store == nil || r.publisher == nil {
		r.logger.Warn("outbox relay is disabled: store or publisher is nil")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain выполняет один проход по pending-событиям и возвращает,
// сколько из них дошло до брокера.
func (r *Relay) Drain(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	r.observeBacklog()

	events, err := r.store.PullPending(r.batchSize)
	if err != nil {
		r.logger.WithError(err).Warn("failed to pull pending outbox events")
		return 0
	}

	published := 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}

		if err := r.dispatch(ctx, event); err != nil {
			r.logger.WithError(err).WithFields(log.Fields{
				"event_id":   event.ID,
				"event_type": event.EventType,
			}).Error("checkout event lost to broker, moving to DLQ")
			relayedEvents.WithLabelValues("failed").Inc()

			r.deadLetter(event, err)
			if markErr := r.store.MarkFailed(event.ID); markErr != nil {
				r.logger.WithError(markErr).WithField("event_id", event.ID).Warn("failed to mark outbox event failed")
			}
			continue
		}

		if err := r.store.MarkSent(event.ID); err != nil {
			r.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to mark outbox event sent")
		}
		published++
	}

	r.observeBacklog()
	return published
}

// dispatch публикует событие, повторяя попытки с экспоненциальным backoff.
func (r *Relay) dispatch(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error

	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if err := r.publisher.Publish(event); err == nil {
			relayedEvents.WithLabelValues("sent").Inc()
			return nil
		} else {
			lastErr = err
			relayedEvents.WithLabelValues("retried").Inc()
		}

		if attempt == r.maxAttempts || delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// deadLetter отправляет событие в DLQ вместе с причиной отказа,
// чтобы его можно было разобрать и переиграть вручную.
func (r *Relay) deadLetter(event domain.OutboxMessage, cause error) {
	if r.dlq == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"event_id":   event.ID,
		"event_type": event.EventType,
		"aggregate":  event.AggregateType + "/" + event.AggregateID,
		"payload":    json.RawMessage(event.Payload),
		"error":      cause.Error(),
		"failed_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		r.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to marshal DLQ envelope")
		relayedEvents.WithLabelValues("dlq_failed").Inc()
		return
	}

	dead := domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
	}
	if err := r.dlq.Publish(dead); err != nil {
		r.logger.WithError(err).WithField("event_id", event.ID).Warn("failed to publish to DLQ")
		relayedEvents.WithLabelValues("dlq_failed").Inc()
	}
}

func (r *Relay) observeBacklog() {
	stats, err := r.store.Stats()
	if err != nil {
		r.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxBacklog.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxBacklogAge.Set(0)
		return
	}
	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxBacklogAge.Set(age)
}
