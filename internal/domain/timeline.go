package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа:
// переходы автомата checkout, сбои и компенсации.
type TimelineEvent struct {
	OrderID string
	Type    string
	Reason  string
	// OperatorID — кассир, при котором произошло событие (аудит).
	OperatorID string
	Occurred   time.Time
}
