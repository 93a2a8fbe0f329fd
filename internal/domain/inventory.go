package domain

import "time"

// InventoryReason — причина движения остатка.
type InventoryReason string

const (
	// InventoryReasonSale — списание при продаже (delta < 0).
	InventoryReasonSale InventoryReason = "sale"
	// InventoryReasonRestock — поступление товара (delta > 0).
	InventoryReasonRestock InventoryReason = "restock"
	// InventoryReasonAdjustment — ручная корректировка после инвентаризации.
	InventoryReasonAdjustment InventoryReason = "adjustment"
)

// InventoryTransaction — запись append-only журнала движений остатков.
// Записи никогда не изменяются и не удаляются; отмена продажи оформляется
// отдельной компенсирующей записью, а не правкой существующей.
type InventoryTransaction struct {
	ID        string
	ProductID string
	// DeltaQty — знаковое изменение остатка: отрицательное для продажи.
	DeltaQty int32
	Reason   InventoryReason
	// OrderID связывает движение с заказом-причиной (пусто для restock).
	OrderID string
	// OperatorID — кто инициировал движение (для аудита).
	OperatorID string
	CreatedAt  time.Time
}

// ValidateInvariants проверяет корректность записи журнала.
func (t *InventoryTransaction) ValidateInvariants() []error {
	var errs []error

	if t.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if t.DeltaQty == 0 {
		errs = append(errs, ErrInventoryDeltaZero)
	}
	if t.Reason == InventoryReasonSale && t.DeltaQty > 0 {
		errs = append(errs, ErrInventorySaleDeltaPositive)
	}
	if t.Reason == InventoryReasonSale && t.OrderID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}

	return errs
}
