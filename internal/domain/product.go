package domain

import "time"

// Product — карточка товара в каталоге точки продаж.
// В рамках одного checkout товар считается неизменяемым: цена копируется
// в позицию заказа в момент продажи.
type Product struct {
	ID string
	// Name — отображаемое название товара.
	Name string
	// Category — произвольная категория для витрины.
	Category string
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	// StockQty — текущий остаток на складе.
	StockQty  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if p.Name == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.UnitPriceMinor < 0 {
		errs = append(errs, ErrLinePriceInvalid)
	}

	return errs
}
