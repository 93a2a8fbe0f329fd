package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// OutboxPublisher раскладывает outbox-сообщения кассы по топикам:
// события движения остатков уходят в inventory-топик, всё остальное —
// в топик заказов (либо в явно заданный defaultTopic, например DLQ).
type OutboxPublisher struct {
	producer     *Producer
	defaultTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
// Пустой defaultTopic означает маршрутизацию по типу события.
func NewOutboxPublisher(producer *Producer, defaultTopic string) domain.OutboxPublisher {
	return &OutboxPublisher{
		producer:     producer,
		defaultTopic: defaultTopic,
	}
}

// Publish отправляет сообщение в подходящий topic, оборачивая payload
// в конверт с метаданными outbox.
func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topicFor(event), key, envelope)
}

// topicFor выбирает topic по типу события.
func (p *OutboxPublisher) topicFor(event domain.OutboxMessage) string {
	if p.defaultTopic != "" {
		return p.defaultTopic
	}
	if strings.Contains(event.EventType, "Inventory") {
		return TopicInventoryEvents
	}
	return TopicOrderEvents
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
