package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
)

// ProductRepository хранит каталог товаров в PostgreSQL.
type ProductRepository struct {
	store *Store
}

// NewProductRepository возвращает postgres-реализацию ProductRepository.
func NewProductRepository(store *Store) *ProductRepository {
	return &ProductRepository{store: store}
}

// Get возвращает товар по идентификатору.
func (r *ProductRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := opContext()
	defer cancel()

	var product domain.Product
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, name, category, unit_price_minor, stock_qty, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.Category,
		&product.UnitPriceMinor, &product.StockQty,
		&product.CreatedAt, &product.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// List возвращает товары, отсортированные по названию.
func (r *ProductRepository) List() ([]domain.Product, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, name, category, unit_price_minor, stock_qty, created_at, updated_at
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Product, 0, 32)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(
			&product.ID, &product.Name, &product.Category,
			&product.UnitPriceMinor, &product.StockQty,
			&product.CreatedAt, &product.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return result, nil
}

// Put создаёт или обновляет карточку товара.
func (r *ProductRepository) Put(product domain.Product) error {
	if product.ID == "" {
		return domain.ErrProductIDRequired
	}

	ctx, cancel := opContext()
	defer cancel()

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price_minor, stock_qty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			unit_price_minor = EXCLUDED.unit_price_minor,
			stock_qty = EXCLUDED.stock_qty,
			updated_at = NOW()
	`, product.ID, product.Name, product.Category, product.UnitPriceMinor, product.StockQty)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

var _ domain.ProductRepository = (*ProductRepository)(nil)
