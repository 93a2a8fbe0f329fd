package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Checkout события
	EventTypeCheckoutStarted   EventType = "checkout.started"
	EventTypeCheckoutCompleted EventType = "checkout.completed"
	EventTypeCheckoutFailed    EventType = "checkout.failed"

	// Order события
	EventTypeOrderCompleted EventType = "order.completed"
	EventTypeOrderVoided    EventType = "order.voided"

	// Inventory события
	EventTypeInventoryAdjusted EventType = "inventory.adjusted"
	EventTypeInventoryPartial  EventType = "inventory.partial_adjustment"
)

// Topics для Kafka
const (
	TopicCheckoutEvents  = "pos.checkout.events"
	TopicOrderEvents     = "pos.order.events"
	TopicInventoryEvents = "pos.inventory.events"
	TopicDeadLetterQueue = "pos.dlq" // Dead Letter Queue для failed messages
)

// CheckoutEvent представляет событие попытки checkout.
type CheckoutEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id,omitempty"`
	TermID    string                 `json:"terminal_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// InventoryEvent представляет событие движения остатков.
type InventoryEvent struct {
	EventType EventType              `json:"event_type"`
	ProductID string                 `json:"product_id"`
	OrderID   string                 `json:"order_id,omitempty"`
	DeltaQty  int32                  `json:"delta_qty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewCheckoutEvent создаёт новое событие checkout.
func NewCheckoutEvent(eventType EventType, orderID string, metadata map[string]interface{}) *CheckoutEvent {
	return &CheckoutEvent{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewInventoryEvent создаёт новое событие движения остатков.
func NewInventoryEvent(eventType EventType, productID, orderID string, deltaQty int32) *InventoryEvent {
	return &InventoryEvent{
		EventType: eventType,
		ProductID: productID,
		OrderID:   orderID,
		DeltaQty:  deltaQty,
		Timestamp: time.Now(),
	}
}
