package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/storage/memory"
	"github.com/vladislavdragonenkov/poscore/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders      domain.OrderRepository
	Products    domain.ProductRepository
	Inventory   domain.InventoryRepository
	Outbox      domain.OutboxRepository
	Timeline    domain.TimelineRepository
	Idempotency domain.IdempotencyRepository

	// Store не nil только при работе поверх PostgreSQL.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies создаёт хранилища приложения: PostgreSQL при заданном DSN,
// иначе in-memory (режим одиночной кассы без внешних сервисов).
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		logger.Info("storage: postgres")
		return &Dependencies{
			Orders:      postgres.NewOrderRepository(store),
			Products:    postgres.NewProductRepository(store),
			Inventory:   postgres.NewInventoryRepository(store),
			Outbox:      postgres.NewOutboxRepository(store),
			Timeline:    postgres.NewTimelineRepository(store),
			Idempotency: postgres.NewIdempotencyRepository(store),
			Store:       store,
			Logger:      logger,
		}, nil
	}

	logger.Info("storage: in-memory")
	products := memory.NewProductRepository()
	return &Dependencies{
		Orders:      memory.NewOrderRepository(),
		Products:    products,
		Inventory:   memory.NewInventoryRepository(products),
		Outbox:      memory.NewOutboxRepository(),
		Timeline:    memory.NewTimelineRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Logger:      logger,
	}, nil
}

// Close освобождает ресурсы хранилища.
func (d *Dependencies) Close() {
	if d.Store == nil {
		return
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
}
