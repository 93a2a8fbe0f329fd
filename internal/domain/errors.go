package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCart — попытка checkout с пустой корзиной.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInvalidQuantity — позиция корзины с количеством <= 0 дошла до checkout.
	ErrInvalidQuantity = errors.New("line quantity must be greater than zero")
	// ErrLineNotFound — операция над отсутствующей позицией корзины.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrCheckoutInProgress — корзина уже занята незавершённым checkout.
	ErrCheckoutInProgress = errors.New("checkout already in progress for this cart")

	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("order amounts must be non-negative")
	// Ошибка при некорректном количестве в позиции (<= 0).
	ErrLineQtyInvalid = errors.New("line qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrLinePriceInvalid = errors.New("line price must be non-negative")
	// Ошибка несоответствия суммы позиции произведению qty * price.
	ErrLineAmountMismatch = errors.New("line amount does not match qty * price")
	// Ошибка несоответствия subtotal и сумм позиций.
	ErrAmountMismatch = errors.New("order subtotal does not match lines sum")
	// Ошибка несоответствия total и subtotal + tax.
	ErrTotalMismatch = errors.New("order total does not match subtotal + tax")

	// ErrProductIDRequired — отсутствует идентификатор товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// ErrProductNameRequired — отсутствует название товара.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrOrderIDRequired — отсутствует идентификатор заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — запись заказа с таким ID уже существует.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrProductNotFound — товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — списание уводит остаток ниже нуля.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInventoryTxnDuplicate — повторное списание по той же паре (order, product).
	ErrInventoryTxnDuplicate = errors.New("inventory transaction already applied for order")
	// ErrInventoryDeltaZero — движение остатка с нулевой дельтой.
	ErrInventoryDeltaZero = errors.New("inventory delta must be non-zero")
	// ErrInventorySaleDeltaPositive — продажа обязана уменьшать остаток.
	ErrInventorySaleDeltaPositive = errors.New("sale delta must be negative")

	// ErrOrderCreationFailed — не удалось сохранить заголовок заказа.
	ErrOrderCreationFailed = errors.New("order creation failed")
	// ErrOrderLineRecordingFailed — не удалось сохранить позиции; заказ удалён компенсацией.
	ErrOrderLineRecordingFailed = errors.New("order line recording failed")

	// Ошибки идемпотентности HTTP-запросов.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// PartialInventoryAdjustmentError сигнализирует о частично применённом
// списании остатков: заказ уже существует, часть товаров списана, часть нет.
// Применённые списания не откатываются автоматически — их сверяет оператор
// по списку Applied.
type PartialInventoryAdjustmentError struct {
	OrderID string
	// Applied — товары, по которым списание прошло.
	Applied []string
	// Failed — товары, по которым списание не выполнено.
	Failed []string
	// Cause — исходная ошибка хранилища.
	Cause error
}

func (e *PartialInventoryAdjustmentError) Error() string {
	return fmt.Sprintf(
		"partial inventory adjustment for order %s: applied=[%s] failed=[%s]: %v",
		e.OrderID, strings.Join(e.Applied, ","), strings.Join(e.Failed, ","), e.Cause,
	)
}

func (e *PartialInventoryAdjustmentError) Unwrap() error {
	return e.Cause
}

// IsPartialAdjustment проверяет, является ли ошибка частичным списанием.
func IsPartialAdjustment(err error) bool {
	var target *PartialInventoryAdjustmentError
	return errors.As(err, &target)
}

// IsValidationError сообщает, относится ли ошибка к локальной валидации
// корзины: такие ошибки не ретраятся и не доходят до хранилища.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrInvalidQuantity)
}
