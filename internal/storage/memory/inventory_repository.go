package memory

import (
	"errors"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

type saleKey struct {
	orderID   string
	productID string
}

// inventoryRepositoryInMemory хранит журнал движений остатков и текущие остатки
// каталога. Каталог и журнал разделяют один мьютекс, поэтому AdjustStock
// выполняется атомарно относительно конкурентных чекаутов.
type inventoryRepositoryInMemory struct {
	mu       sync.RWMutex
	products domain.ProductRepository
	txns     []domain.InventoryTransaction
	sales    map[saleKey]struct{}
	stock    map[string]int32
	seeded   map[string]bool
}

// NewInventoryRepository возвращает in-memory журнал движений остатков.
// products используется для первичной загрузки остатка товара.
func NewInventoryRepository(products domain.ProductRepository) domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		products: products,
		sales:    make(map[saleKey]struct{}),
		stock:    make(map[string]int32),
		seeded:   make(map[string]bool),
	}
}

// AppendTransaction добавляет запись в журнал. Повторная продажа той же пары
// (заказ, товар) отклоняется с ErrInventoryTxnDuplicate.
func (r *inventoryRepositoryInMemory) AppendTransaction(txn domain.InventoryTransaction) error {
	if violations := txn.ValidateInvariants(); len(violations) > 0 {
		return errors.Join(violations...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if txn.Reason == domain.InventoryReasonSale {
		key := saleKey{orderID: txn.OrderID, productID: txn.ProductID}
		if _, dup := r.sales[key]; dup {
			return domain.ErrInventoryTxnDuplicate
		}
		r.sales[key] = struct{}{}
	}

	r.txns = append(r.txns, txn)
	return nil
}

// AdjustStock атомарно применяет дельту к остатку товара.
// Уход в минус запрещён: возвращается ErrInsufficientStock.
func (r *inventoryRepositoryInMemory) AdjustStock(productID string, delta int32) error {
	if delta == 0 {
		return domain.ErrInventoryDeltaZero
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.currentStockLocked(productID)
	if err != nil {
		return err
	}

	next := current + delta
	if next < 0 {
		return domain.ErrInsufficientStock
	}
	r.stock[productID] = next

	if r.products != nil {
		product, err := r.products.Get(productID)
		if err == nil {
			product.StockQty = next
			_ = r.products.Put(product)
		}
	}
	return nil
}

// ListByOrder возвращает движения остатков по заказу в порядке записи.
func (r *inventoryRepositoryInMemory) ListByOrder(orderID string) ([]domain.InventoryTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryTransaction, 0, 4)
	for _, txn := range r.txns {
		if txn.OrderID == orderID {
			result = append(result, txn)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// currentStockLocked лениво подтягивает остаток из каталога при первом обращении.
func (r *inventoryRepositoryInMemory) currentStockLocked(productID string) (int32, error) {
	if r.seeded[productID] {
		return r.stock[productID], nil
	}

	if r.products == nil {
		return 0, domain.ErrProductNotFound
	}
	product, err := r.products.Get(productID)
	if err != nil {
		return 0, err
	}
	r.stock[productID] = product.StockQty
	r.seeded[productID] = true
	return product.StockQty, nil
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
