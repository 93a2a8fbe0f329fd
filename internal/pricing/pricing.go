// Пакет pricing содержит чистые функции расчёта сумм в минимальных
// денежных единицах. Никаких побочных эффектов: одни и те же входы
// всегда дают один и тот же результат.
package pricing

import "math"

// Line — минимальная проекция позиции, достаточная для расчёта итогов.
type Line struct {
	Qty            int32
	UnitPriceMinor int64
}

// Totals — итоги корзины/заказа в минимальных денежных единицах.
type Totals struct {
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
}

// LineAmount возвращает сумму позиции: qty * unit_price.
// Входы считаются провалидированными вызывающей стороной (qty и цена
// неотрицательны); функция их не перепроверяет.
func LineAmount(qty int32, unitPriceMinor int64) int64 {
	return int64(qty) * unitPriceMinor
}

// ComputeTotals считает subtotal, налог и итог по ставке taxRate.
// Налог округляется до минимальной единицы валюты по правилу half-up.
// Пустой набор позиций даёт нулевые итоги.
func ComputeTotals(lines []Line, taxRate float64) Totals {
	var subtotal int64
	for _, line := range lines {
		subtotal += LineAmount(line.Qty, line.UnitPriceMinor)
	}

	tax := RoundMinor(float64(subtotal) * taxRate)

	return Totals{
		SubtotalMinor: subtotal,
		TaxMinor:      tax,
		TotalMinor:    subtotal + tax,
	}
}

// RoundMinor округляет значение до целого числа минимальных единиц (half-up).
func RoundMinor(v float64) int64 {
	return int64(math.Round(v))
}
