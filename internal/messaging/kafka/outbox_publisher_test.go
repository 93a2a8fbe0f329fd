package kafka

import (
	"testing"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

func TestOutboxPublisher_TopicRouting(t *testing.T) {
	t.Parallel()

	routing := &OutboxPublisher{}
	pinned := &OutboxPublisher{defaultTopic: TopicDeadLetterQueue}

	cases := []struct {
		name      string
		publisher *OutboxPublisher
		eventType string
		want      string
	}{
		{"order event", routing, "OrderCompleted", TopicOrderEvents},
		{"inventory event", routing, "InventoryAdjustmentIncomplete", TopicInventoryEvents},
		{"unknown event", routing, "SomethingElse", TopicOrderEvents},
		{"pinned topic wins", pinned, "InventoryAdjustmentIncomplete", TopicDeadLetterQueue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.publisher.topicFor(domain.OutboxMessage{EventType: tc.eventType})
			if got != tc.want {
				t.Errorf("topicFor(%q) = %q, want %q", tc.eventType, got, tc.want)
			}
		})
	}
}

func TestOutboxPublisher_PublishWithoutProducer(t *testing.T) {
	t.Parallel()

	var p *OutboxPublisher
	if err := p.Publish(domain.OutboxMessage{ID: "msg-1"}); err == nil {
		t.Fatal("expected error from uninitialized publisher")
	}
}
