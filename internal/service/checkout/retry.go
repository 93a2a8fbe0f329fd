package checkout

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/cart"
	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryableOrchestrator оборачивает оркестратор retry логикой.
// Повторяются только сбои персистентности, после которых состояние чистое:
// не создан заказ либо заказ компенсирован удалением. Частичное списание
// остатков не повторяется, потому что применённые дельты уже действуют.
type RetryableOrchestrator struct {
	orchestrator Orchestrator
	config       RetryConfig
	logger       *log.Entry
}

// NewRetryableOrchestrator создаёт оркестратор с retry логикой.
func NewRetryableOrchestrator(orchestrator Orchestrator, config RetryConfig, logger *log.Entry) *RetryableOrchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "retryable-checkout")
	}

	return &RetryableOrchestrator{
		orchestrator: orchestrator,
		config:       config,
		logger:       logger,
	}
}

// Checkout проводит checkout с повтором retryable ошибок.
func (ro *RetryableOrchestrator) Checkout(c *cart.Cart, req Request) Result {
	var last Result
	delay := ro.config.InitialDelay

	for attempt := 1; attempt <= ro.config.MaxAttempts; attempt++ {
		last = ro.orchestrator.Checkout(c, req)
		if last.Success {
			if attempt > 1 {
				ro.logger.WithFields(log.Fields{
					"order_id": last.Order.ID,
					"attempt":  attempt,
				}).Info("checkout succeeded after retry")
			}
			return last
		}

		if !ro.shouldRetry(last.Err) {
			ro.logger.WithFields(log.Fields{
				"attempt": attempt,
				"error":   last.Err,
			}).Warn("checkout failed with non-retryable error")
			return last
		}

		if attempt < ro.config.MaxAttempts {
			ro.logger.WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
				"error":   last.Err,
			}).Warn("checkout failed, retrying")

			time.Sleep(delay)

			delay = time.Duration(float64(delay) * ro.config.BackoffFactor)
			if delay > ro.config.MaxDelay {
				delay = ro.config.MaxDelay
			}
		}
	}

	ro.logger.WithFields(log.Fields{
		"max_attempts": ro.config.MaxAttempts,
		"error":        last.Err,
	}).Error("checkout failed after all retry attempts")
	return last
}

// shouldRetry определяет, стоит ли повторять checkout при данной ошибке.
func (ro *RetryableOrchestrator) shouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Ошибки входных данных повтор не исправит.
	if domain.IsValidationError(err) ||
		errors.Is(err, domain.ErrProductNotFound) ||
		errors.Is(err, domain.ErrInsufficientStock) ||
		errors.Is(err, domain.ErrCheckoutInProgress) {
		return false
	}

	// Частичное списание требует ручного разбора, а не повтора.
	if domain.IsPartialAdjustment(err) {
		return false
	}

	// Сбои записи заказа и позиций оставляют чистое состояние: повторяем.
	if errors.Is(err, domain.ErrOrderCreationFailed) ||
		errors.Is(err, domain.ErrOrderLineRecordingFailed) {
		return true
	}

	return true
}

// CircuitBreaker простая реализация circuit breaker паттерна.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
	}
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if cb.state == CircuitOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		} else {
			return errors.New("circuit breaker is open")
		}
	}

	err := fn()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}

		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0

	return nil
}

// CircuitBreakerOrchestrator оркестратор с circuit breaker защитой:
// при деградации хранилища новые чекауты отклоняются быстро,
// не нагружая базу безнадёжными попытками.
type CircuitBreakerOrchestrator struct {
	orchestrator Orchestrator
	breaker      *CircuitBreaker
	logger       *log.Entry
}

// NewCircuitBreakerOrchestrator создаёт оркестратор с circuit breaker.
func NewCircuitBreakerOrchestrator(orchestrator Orchestrator, breaker *CircuitBreaker, logger *log.Entry) *CircuitBreakerOrchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker-checkout")
	}
	return &CircuitBreakerOrchestrator{
		orchestrator: orchestrator,
		breaker:      breaker,
		logger:       logger,
	}
}

// Checkout проводит checkout через circuit breaker.
func (cbo *CircuitBreakerOrchestrator) Checkout(c *cart.Cart, req Request) Result {
	var result Result
	err := cbo.breaker.Execute("Checkout", func() error {
		result = cbo.orchestrator.Checkout(c, req)
		// Ошибки входных данных не считаются отказом зависимостей.
		if result.Err != nil && !domain.IsValidationError(result.Err) {
			return result.Err
		}
		return nil
	})
	if err != nil && result.State == "" {
		cbo.logger.WithError(err).Error("checkout blocked by circuit breaker")
		return Result{Success: false, State: domain.CheckoutStateFailed, Err: err}
	}
	return result
}

var _ Orchestrator = (*RetryableOrchestrator)(nil)
var _ Orchestrator = (*CircuitBreakerOrchestrator)(nil)
