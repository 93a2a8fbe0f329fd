// Пакет cart реализует состояние корзины одной POS-сессии.
//
// Корзина принадлежит ровно одному терминалу и мутируется из одного
// логического потока, поэтому внутренних блокировок нет. На время
// незавершённого checkout корзина захватывается оркестратором: любые
// мутации до Release отклоняются.
package cart

import (
	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/pricing"
)

// Line — позиция корзины. Инвариант корзины: не более одной позиции
// на product id (повторное добавление сливается в количество).
type Line struct {
	ProductID      string
	Name           string
	Qty            int32
	UnitPriceMinor int64
	// AmountMinor — производная сумма позиции, пересчитывается при
	// каждом изменении количества.
	AmountMinor int64
}

// Cart хранит позиции в порядке добавления.
type Cart struct {
	lines []Line
	index map[string]int
	// inCheckout — корзина эксклюзивно занята незавершённым checkout.
	inCheckout bool
}

// New возвращает пустую корзину.
func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// AddItem добавляет товар в корзину. Если позиция по product id уже есть,
// количество увеличивается на единицу; дубликат позиции не создаётся.
func (c *Cart) AddItem(product domain.Product) error {
	if c.inCheckout {
		return domain.ErrCheckoutInProgress
	}
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}

	if i, ok := c.index[product.ID]; ok {
		c.lines[i].Qty++
		c.lines[i].AmountMinor = pricing.LineAmount(c.lines[i].Qty, c.lines[i].UnitPriceMinor)
		return nil
	}

	c.index[product.ID] = len(c.lines)
	c.lines = append(c.lines, Line{
		ProductID:      product.ID,
		Name:           product.Name,
		Qty:            1,
		UnitPriceMinor: product.UnitPriceMinor,
		AmountMinor:    pricing.LineAmount(1, product.UnitPriceMinor),
	})
	return nil
}

// UpdateQuantity устанавливает количество позиции. Количество <= 0
// эквивалентно удалению. Отсутствующий product id — это ошибка
// ErrLineNotFound, а не тихий no-op: молчаливое отсутствие эффекта
// маскирует баги вызывающего кода.
func (c *Cart) UpdateQuantity(productID string, qty int32) error {
	if c.inCheckout {
		return domain.ErrCheckoutInProgress
	}

	i, ok := c.index[productID]
	if !ok {
		return domain.ErrLineNotFound
	}

	if qty <= 0 {
		c.removeAt(i)
		return nil
	}

	c.lines[i].Qty = qty
	c.lines[i].AmountMinor = pricing.LineAmount(qty, c.lines[i].UnitPriceMinor)
	return nil
}

// RemoveItem удаляет позицию; отсутствие позиции — no-op.
func (c *Cart) RemoveItem(productID string) error {
	if c.inCheckout {
		return domain.ErrCheckoutInProgress
	}

	if i, ok := c.index[productID]; ok {
		c.removeAt(i)
	}
	return nil
}

// Clear опустошает корзину: после успешного checkout или при явной отмене.
func (c *Cart) Clear() error {
	if c.inCheckout {
		return domain.ErrCheckoutInProgress
	}

	c.lines = nil
	c.index = make(map[string]int)
	return nil
}

// Acquire захватывает корзину на время checkout.
// Повторный захват до Release отклоняется.
func (c *Cart) Acquire() error {
	if c.inCheckout {
		return domain.ErrCheckoutInProgress
	}
	c.inCheckout = true
	return nil
}

// Release возвращает корзину владельцу; идемпотентен.
func (c *Cart) Release() {
	c.inCheckout = false
}

// Empty сообщает, пуста ли корзина.
func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Len возвращает число позиций.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines возвращает копию позиций в порядке добавления.
func (c *Cart) Lines() []Line {
	result := make([]Line, len(c.lines))
	copy(result, c.lines)
	return result
}

// PricingLines возвращает проекцию позиций для расчёта итогов.
func (c *Cart) PricingLines() []pricing.Line {
	result := make([]pricing.Line, 0, len(c.lines))
	for _, line := range c.lines {
		result = append(result, pricing.Line{Qty: line.Qty, UnitPriceMinor: line.UnitPriceMinor})
	}
	return result
}

func (c *Cart) removeAt(i int) {
	removed := c.lines[i]
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, removed.ProductID)
	for j := i; j < len(c.lines); j++ {
		c.index[c.lines[j].ProductID] = j
	}
}
