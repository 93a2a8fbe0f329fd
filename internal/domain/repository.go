package domain

// OrderRepository описывает требования к хранилищу заказов.
// Заголовок и позиции сохраняются раздельно: оркестратор checkout удаляет
// заголовок компенсацией, если позиции записать не удалось.
type OrderRepository interface {
	// Create сохраняет заголовок заказа. Возвращает ErrOrderAlreadyExists,
	// если запись с таким ID уже существует.
	Create(order Order) error
	// CreateLines сохраняет позиции ранее созданного заказа.
	CreateLines(orderID string, lines []OrderLine) error
	// Delete удаляет заказ вместе с позициями (компенсация при сбое).
	Delete(id string) error
	// Get возвращает заказ с позициями или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListRecent возвращает последние заказы с опциональным лимитом.
	ListRecent(limit int) ([]Order, error)
}

// ProductRepository описывает каталог товаров.
type ProductRepository interface {
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// List возвращает все товары каталога.
	List() ([]Product, error)
	// Put создаёт или обновляет карточку товара.
	Put(product Product) error
}

// InventoryRepository описывает журнал движений и счётчики остатков.
type InventoryRepository interface {
	// AppendTransaction добавляет запись журнала. Повторная запись по той же
	// паре (order, product) с причиной sale отклоняется ErrInventoryTxnDuplicate:
	// эффект заказа на остатки применяется ровно один раз.
	AppendTransaction(txn InventoryTransaction) error
	// AdjustStock атомарно применяет дельту к остатку товара.
	// Дельта коммутативна: конкурентные списания с разных терминалов не
	// теряют обновления. Возвращает ErrInsufficientStock, если списание
	// уводит остаток ниже нуля.
	AdjustStock(productID string, delta int32) error
	// ListByOrder возвращает движения, связанные с заказом.
	ListByOrder(orderID string) ([]InventoryTransaction, error)
}
