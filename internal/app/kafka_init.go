package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/messaging/kafka"
)

// kafkaResources связывает producer кассы с парой publisher'ов:
// events маршрутизирует чековые события по топикам, dlq складывает
// недоставленные события в dead letter queue.
type kafkaResources struct {
	producer *kafka.Producer
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// setupKafka собирает Kafka-ресурсы по списку брокеров через запятую.
// Пустой список означает работу без брокера: события остаются в outbox.
func setupKafka(brokers string, logger *log.Entry) (*kafkaResources, error) {
	trimmed := strings.TrimSpace(brokers)
	if trimmed == "" {
		return nil, nil
	}

	brokerList := strings.Split(trimmed, ",")
	for i := range brokerList {
		brokerList[i] = strings.TrimSpace(brokerList[i])
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return &kafkaResources{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, ""),
		dlq:      kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue),
	}, nil
}

// close останавливает producer; вызов на nil-ресурсах безопасен.
func (k *kafkaResources) close(logger *log.Entry) {
	if k == nil || k.producer == nil {
		return
	}

	if err := k.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
