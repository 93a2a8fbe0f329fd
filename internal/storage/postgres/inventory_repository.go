package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// InventoryRepository хранит журнал движений остатков в PostgreSQL.
type InventoryRepository struct {
	store *Store
}

// NewInventoryRepository возвращает postgres-реализацию InventoryRepository.
func NewInventoryRepository(store *Store) *InventoryRepository {
	return &InventoryRepository{store: store}
}

// AppendTransaction добавляет запись в журнал движений.
// Повторная продажа той же пары (order, product) отклоняется уникальным индексом.
func (r *InventoryRepository) AppendTransaction(txn domain.InventoryTransaction) error {
	if violations := txn.ValidateInvariants(); len(violations) > 0 {
		return errors.Join(violations...)
	}

	ctx, cancel := opContext()
	defer cancel()

	var orderID any
	if txn.OrderID != "" {
		orderID = txn.OrderID
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, product_id, delta_qty, reason, order_id, operator_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, txn.ID, txn.ProductID, txn.DeltaQty, string(txn.Reason), orderID, txn.OperatorID, txn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInventoryTxnDuplicate
		}
		return fmt.Errorf("insert inventory transaction: %w", err)
	}
	return nil
}

// AdjustStock применяет дельту к остатку одним UPDATE.
// Условие stock_qty + delta >= 0 гарантирует атомарность при параллельных
// чекаутах: строка либо обновляется, либо остаток недостаточен.
func (r *InventoryRepository) AdjustStock(productID string, delta int32) error {
	if delta == 0 {
		return domain.ErrInventoryDeltaZero
	}

	ctx, cancel := opContext()
	defer cancel()

	result, err := r.store.db.ExecContext(ctx, `
		UPDATE products
		SET stock_qty = stock_qty + $2, updated_at = NOW()
		WHERE id = $1 AND stock_qty + $2 >= 0
	`, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust stock rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.productExists(productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

// ListByOrder возвращает движения остатков по заказу в порядке записи.
func (r *InventoryRepository) ListByOrder(orderID string) ([]domain.InventoryTransaction, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, product_id, delta_qty, reason, COALESCE(order_id::text, ''), operator_id, created_at
		FROM inventory_transactions
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select inventory transactions: %w", err)
	}
	defer rows.Close()

	result := make([]domain.InventoryTransaction, 0, 8)
	for rows.Next() {
		var txn domain.InventoryTransaction
		var reason string
		if err := rows.Scan(
			&txn.ID, &txn.ProductID, &txn.DeltaQty, &reason,
			&txn.OrderID, &txn.OperatorID, &txn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan inventory transaction row: %w", err)
		}
		txn.Reason = domain.InventoryReason(reason)
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory transaction rows: %w", err)
	}
	return result, nil
}

func (r *InventoryRepository) productExists(productID string) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()

	var one int
	err := r.store.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = $1`, productID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return true, nil
}

var _ domain.InventoryRepository = (*InventoryRepository)(nil)
