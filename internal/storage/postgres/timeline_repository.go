package postgres

import (
	"fmt"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// TimelineRepository хранит историю событий заказов в PostgreSQL.
type TimelineRepository struct {
	store *Store
}

// NewTimelineRepository возвращает postgres-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) *TimelineRepository {
	return &TimelineRepository{store: store}
}

// Append добавляет событие в историю заказа.
func (r *TimelineRepository) Append(event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	ctx, cancel := opContext()
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO order_timeline (order_id, event_type, reason, operator_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.OrderID, event.Type, event.Reason, event.OperatorID, event.Occurred)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

// List возвращает события заказа в хронологическом порядке.
func (r *TimelineRepository) List(orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT order_id, event_type, reason, operator_id, occurred_at
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY occurred_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select timeline events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.TimelineEvent, 0, 8)
	for rows.Next() {
		var event domain.TimelineEvent
		if err := rows.Scan(
			&event.OrderID, &event.Type, &event.Reason,
			&event.OperatorID, &event.Occurred,
		); err != nil {
			return nil, fmt.Errorf("scan timeline event row: %w", err)
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline event rows: %w", err)
	}
	return result, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
