package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

const pgUniqueViolation = "23505"

// OrderRepository хранит заказы и их позиции в PostgreSQL.
type OrderRepository struct {
	store *Store
}

// NewOrderRepository возвращает postgres-реализацию OrderRepository.
func NewOrderRepository(store *Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Create сохраняет заголовок заказа.
func (r *OrderRepository) Create(order domain.Order) error {
	ctx, cancel := opContext()
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, number, customer_id, status, payment_status,
			payment_method, delivery_method, currency,
			subtotal_minor, tax_minor, total_minor, operator_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		order.ID, order.Number, order.CustomerID, string(order.Status), string(order.PaymentStatus),
		string(order.Payment), string(order.Delivery), order.Currency,
		order.SubtotalMinor, order.TaxMinor, order.TotalMinor, order.OperatorID, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CreateLines сохраняет позиции заказа одной транзакцией:
// либо записываются все, либо ни одной.
func (r *OrderRepository) CreateLines(orderID string, lines []domain.OrderLine) error {
	ctx, cancel := opContext()
	defer cancel()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order lines tx: %w", err)
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, product_id, name, qty,
				unit_price_minor, amount_minor, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			line.ID, orderID, line.ProductID, line.Name, line.Qty,
			line.UnitPriceMinor, line.AmountMinor, line.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert order line %s: %w", line.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order lines: %w", err)
	}
	return nil
}

// Delete удаляет заказ; позиции удаляются каскадно.
func (r *OrderRepository) Delete(id string) error {
	ctx, cancel := opContext()
	defer cancel()

	result, err := r.store.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete order rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// Get возвращает заказ вместе с позициями.
func (r *OrderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	var order domain.Order
	var status, paymentStatus, payment, delivery string
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, number, customer_id, status, payment_status,
		       payment_method, delivery_method, currency,
		       subtotal_minor, tax_minor, total_minor, operator_id, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(
		&order.ID, &order.Number, &order.CustomerID, &status, &paymentStatus,
		&payment, &delivery, &order.Currency,
		&order.SubtotalMinor, &order.TaxMinor, &order.TotalMinor, &order.OperatorID, &order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	order.Payment = domain.PaymentMethod(payment)
	order.Delivery = domain.DeliveryMethod(delivery)

	lines, err := r.loadLines(id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

// ListRecent возвращает последние заказы без позиций.
func (r *OrderRepository) ListRecent(limit int) ([]domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, number, customer_id, status, payment_status,
		       payment_method, delivery_method, currency,
		       subtotal_minor, tax_minor, total_minor, operator_id, created_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent orders: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Order, 0, limit)
	for rows.Next() {
		var order domain.Order
		var status, paymentStatus, payment, delivery string
		if err := rows.Scan(
			&order.ID, &order.Number, &order.CustomerID, &status, &paymentStatus,
			&payment, &delivery, &order.Currency,
			&order.SubtotalMinor, &order.TaxMinor, &order.TotalMinor, &order.OperatorID, &order.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		order.Status = domain.OrderStatus(status)
		order.PaymentStatus = domain.PaymentStatus(paymentStatus)
		order.Payment = domain.PaymentMethod(payment)
		order.Delivery = domain.DeliveryMethod(delivery)
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return result, nil
}

func (r *OrderRepository) loadLines(orderID string) ([]domain.OrderLine, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, qty, unit_price_minor, amount_minor, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(
			&line.ID, &line.OrderID, &line.ProductID, &line.Name,
			&line.Qty, &line.UnitPriceMinor, &line.AmountMinor, &line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order line row: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order line rows: %w", err)
	}
	return lines, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
