package domain

import "time"

// Operator — действующий пользователь кассы; используется только для аудита,
// в расчётах цены не участвует.
type Operator struct {
	ID   string
	Name string
}

// IdentityProvider отдаёт личность оператора текущей POS-сессии.
type IdentityProvider interface {
	Operator() (Operator, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// CheckoutStep задаёт константы шагов для метрик/логов.
type CheckoutStep string

const (
	CheckoutStepValidate   CheckoutStep = "validate"
	CheckoutStepOrder      CheckoutStep = "order"
	CheckoutStepLines      CheckoutStep = "lines"
	CheckoutStepInventory  CheckoutStep = "inventory"
	CheckoutStepCompensate CheckoutStep = "compensate"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
