package domain

import (
	"fmt"
	"time"
)

// OrderStatus описывает статус заказа, созданного на кассе.
type OrderStatus string

const (
	// OrderStatusCompleted — заказ полностью оформлен; платёж принят на терминале.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusVoided — заказ аннулирован оператором после оформления.
	OrderStatusVoided OrderStatus = "voided"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPaid — оплата принята на POS-терминале до создания заказа.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded — средства возвращены покупателю.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod — способ оплаты, выбранный на кассе.
type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "cash"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

// DeliveryMethod — способ получения товара.
type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "pickup"
	DeliveryMethodDelivery DeliveryMethod = "delivery"
)

// OrderLine представляет одну позицию заказа.
// Цена копируется из карточки товара в момент продажи: последующие изменения
// каталога не влияют на исторические заказы.
type OrderLine struct {
	ID        string
	OrderID   string
	ProductID string
	// Name — название товара на момент продажи (для чека).
	Name string
	// Qty — количество проданных единиц.
	Qty int32
	// UnitPriceMinor — цена за единицу на момент продажи.
	UnitPriceMinor int64
	// AmountMinor — сумма позиции: qty * unit_price.
	AmountMinor int64
	CreatedAt   time.Time
}

// Order агрегирует результат одного checkout: заголовок и позиции.
type Order struct {
	ID string
	// Number — человекочитаемый номер заказа для чека и витрины.
	Number string
	// CustomerID — опциональная ссылка на покупателя.
	CustomerID    string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Payment       PaymentMethod
	Delivery      DeliveryMethod
	Currency      string
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
	// OperatorID — кассир, оформивший заказ (только для аудита).
	OperatorID string
	Lines      []OrderLine
	CreatedAt  time.Time
}

// NewOrderNumber генерирует номер заказа формата ORD-<суффикс timestamp>.
// Уникальность достаточна для отображения; криптографических гарантий нет.
func NewOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%06d", at.UnixMilli()%1_000_000)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}
	if o.SubtotalMinor < 0 || o.TaxMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	var calc int64
	for _, line := range o.Lines {
		if line.Qty <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrLinePriceInvalid)
		}
		if line.AmountMinor != int64(line.Qty)*line.UnitPriceMinor {
			errs = append(errs, ErrLineAmountMismatch)
		}
		calc += line.AmountMinor
	}
	if calc != o.SubtotalMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.TotalMinor != o.SubtotalMinor+o.TaxMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
