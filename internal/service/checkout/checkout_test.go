package checkout

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/poscore/internal/cart"
	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/storage/memory"
)

type stubOrders struct {
	orders      map[string]domain.Order
	createCalls int
	linesCalls  int
	deleteCalls int

	createErr error
	linesErr  error
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: make(map[string]domain.Order)}
}

func (s *stubOrders) Create(order domain.Order) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	// Как и настоящие репозитории: заголовок без позиций, позиции пишет CreateLines.
	header := order
	header.Lines = nil
	s.orders[order.ID] = header
	return nil
}

func (s *stubOrders) CreateLines(orderID string, lines []domain.OrderLine) error {
	s.linesCalls++
	if s.linesErr != nil {
		return s.linesErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Lines = append(order.Lines, lines...)
	s.orders[orderID] = order
	return nil
}

func (s *stubOrders) Delete(id string) error {
	s.deleteCalls++
	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *stubOrders) Get(id string) (domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrders) ListRecent(limit int) ([]domain.Order, error) {
	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, order)
	}
	return result, nil
}

type stubInventory struct {
	stock     map[string]int32
	txns      []domain.InventoryTransaction
	sales     map[string]struct{}
	adjustErr map[string]error
	appendErr map[string]error
}

func newStubInventory() *stubInventory {
	return &stubInventory{
		stock:     make(map[string]int32),
		sales:     make(map[string]struct{}),
		adjustErr: make(map[string]error),
		appendErr: make(map[string]error),
	}
}

func (s *stubInventory) AppendTransaction(txn domain.InventoryTransaction) error {
	if err := s.appendErr[txn.ProductID]; err != nil {
		return err
	}
	if txn.Reason == domain.InventoryReasonSale {
		key := txn.OrderID + "/" + txn.ProductID
		if _, dup := s.sales[key]; dup {
			return domain.ErrInventoryTxnDuplicate
		}
		s.sales[key] = struct{}{}
	}
	s.txns = append(s.txns, txn)
	return nil
}

func (s *stubInventory) AdjustStock(productID string, delta int32) error {
	if err := s.adjustErr[productID]; err != nil {
		return err
	}
	current, ok := s.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current+delta < 0 {
		return domain.ErrInsufficientStock
	}
	s.stock[productID] = current + delta
	return nil
}

func (s *stubInventory) ListByOrder(orderID string) ([]domain.InventoryTransaction, error) {
	result := make([]domain.InventoryTransaction, 0, len(s.txns))
	for _, txn := range s.txns {
		if txn.OrderID == orderID {
			result = append(result, txn)
		}
	}
	return result, nil
}

type stubIdentity struct{}

func (stubIdentity) Operator() (domain.Operator, error) {
	return domain.Operator{ID: "op-1", Name: "Asha"}, nil
}

func teddyBear() domain.Product {
	return domain.Product{ID: "p-teddy", Name: "Teddy Bear", Category: "Toys", UnitPriceMinor: 89900, StockQty: 10}
}

func woodenTrain() domain.Product {
	return domain.Product{ID: "p-train", Name: "Wooden Train", Category: "Toys", UnitPriceMinor: 49900, StockQty: 5}
}

type fixture struct {
	orders    *stubOrders
	products  domain.ProductRepository
	inventory *stubInventory
	outbox    domain.OutboxRepository
	timeline  domain.TimelineRepository
	cart      *cart.Cart
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	products := memory.NewProductRepository()
	for _, p := range []domain.Product{teddyBear(), woodenTrain()} {
		if err := products.Put(p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	inventory := newStubInventory()
	inventory.stock[teddyBear().ID] = 10
	inventory.stock[woodenTrain().ID] = 5

	return &fixture{
		orders:    newStubOrders(),
		products:  products,
		inventory: inventory,
		outbox:    memory.NewOutboxRepository(),
		timeline:  memory.NewTimelineRepository(),
		cart:      cart.New(),
	}
}

func (f *fixture) orchestrator() Orchestrator {
	return NewOrchestratorWithoutMetrics(
		f.orders, f.products, f.inventory, f.outbox, f.timeline,
		stubIdentity{}, "INR", 0.18, nil,
	)
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	// Teddy Bear x2, Wooden Train x1.
	for _, p := range []domain.Product{teddyBear(), teddyBear(), woodenTrain()} {
		if err := f.cart.AddItem(p); err != nil {
			t.Fatalf("AddItem(%s): %v", p.ID, err)
		}
	}
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	result := f.orchestrator().Checkout(f.cart, Request{Payment: domain.PaymentMethodCard})

	if !result.Success {
		t.Fatalf("Checkout failed: %v", result.Err)
	}
	if result.State != domain.CheckoutStateCompleted {
		t.Errorf("State = %q, want completed", result.State)
	}

	if f.orders.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", f.orders.createCalls)
	}
	order, err := f.orders.Get(result.Order.ID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if len(order.Lines) != 2 {
		t.Errorf("len(Lines) = %d, want 2", len(order.Lines))
	}

	// 2 x 89900 + 1 x 49900 = 229700; tax 18% = 41346.
	if order.SubtotalMinor != 229700 {
		t.Errorf("SubtotalMinor = %d, want 229700", order.SubtotalMinor)
	}
	if order.TaxMinor != 41346 {
		t.Errorf("TaxMinor = %d, want 41346", order.TaxMinor)
	}
	if order.TotalMinor != order.SubtotalMinor+order.TaxMinor {
		t.Errorf("TotalMinor = %d, want subtotal+tax", order.TotalMinor)
	}
	if violations := order.ValidateInvariants(); len(violations) != 0 {
		t.Errorf("order invariants violated: %v", violations)
	}

	if len(f.inventory.txns) != 2 {
		t.Errorf("inventory transactions = %d, want 2", len(f.inventory.txns))
	}
	if got := f.inventory.stock[teddyBear().ID]; got != 8 {
		t.Errorf("teddy stock = %d, want 8", got)
	}
	if got := f.inventory.stock[woodenTrain().ID]; got != 4 {
		t.Errorf("train stock = %d, want 4", got)
	}

	if !f.cart.Empty() {
		t.Error("cart must be cleared after successful checkout")
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout of empty cart must fail")
	}
	if !errors.Is(result.Err, domain.ErrEmptyCart) {
		t.Fatalf("Err = %v, want ErrEmptyCart", result.Err)
	}
	if result.State != domain.CheckoutStateFailed {
		t.Errorf("State = %q, want failed", result.State)
	}
	if f.orders.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", f.orders.createCalls)
	}
	if len(f.inventory.txns) != 0 {
		t.Errorf("inventory transactions = %d, want 0", len(f.inventory.txns))
	}
}

func TestCheckout_LineRecordingFailureCompensates(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.orders.linesErr = errors.New("disk full")

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout must fail when line recording fails")
	}
	if !errors.Is(result.Err, domain.ErrOrderLineRecordingFailed) {
		t.Fatalf("Err = %v, want ErrOrderLineRecordingFailed", result.Err)
	}

	if f.orders.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want 1 (compensating delete)", f.orders.deleteCalls)
	}
	if len(f.orders.orders) != 0 {
		t.Errorf("orders left = %d, want 0", len(f.orders.orders))
	}

	// Остатки не тронуты, корзина сохранена для повторной попытки.
	if got := f.inventory.stock[teddyBear().ID]; got != 10 {
		t.Errorf("teddy stock = %d, want 10", got)
	}
	if f.cart.Len() != 2 {
		t.Errorf("cart lines = %d, want 2", f.cart.Len())
	}
}

func TestCheckout_OrderCreationFailure(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.orders.createErr = errors.New("connection refused")

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout must fail when order creation fails")
	}
	if !errors.Is(result.Err, domain.ErrOrderCreationFailed) {
		t.Fatalf("Err = %v, want ErrOrderCreationFailed", result.Err)
	}
	if f.orders.linesCalls != 0 {
		t.Errorf("linesCalls = %d, want 0", f.orders.linesCalls)
	}
	if f.cart.Len() != 2 {
		t.Errorf("cart lines = %d, want 2", f.cart.Len())
	}
}

func TestCheckout_PartialInventoryAdjustment(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.inventory.adjustErr[woodenTrain().ID] = domain.ErrInsufficientStock

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout must fail on partial inventory adjustment")
	}

	var partial *domain.PartialInventoryAdjustmentError
	if !errors.As(result.Err, &partial) {
		t.Fatalf("Err = %v, want PartialInventoryAdjustmentError", result.Err)
	}
	if len(partial.Applied) != 1 || partial.Applied[0] != teddyBear().ID {
		t.Errorf("Applied = %v, want [%s]", partial.Applied, teddyBear().ID)
	}
	if len(partial.Failed) != 1 || partial.Failed[0] != woodenTrain().ID {
		t.Errorf("Failed = %v, want [%s]", partial.Failed, woodenTrain().ID)
	}
	if !errors.Is(partial.Cause, domain.ErrInsufficientStock) {
		t.Errorf("Cause = %v, want ErrInsufficientStock", partial.Cause)
	}

	// Применённое списание не откатывается автоматически.
	if got := f.inventory.stock[teddyBear().ID]; got != 8 {
		t.Errorf("teddy stock = %d, want 8 (no auto-rollback)", got)
	}
	// Заказ и позиции остаются для ручного разбора.
	if len(f.orders.orders) != 1 {
		t.Errorf("orders = %d, want 1", len(f.orders.orders))
	}
	if f.cart.Len() != 2 {
		t.Errorf("cart lines = %d, want 2", f.cart.Len())
	}
}

func TestCheckout_InventoryAppliedOncePerOrder(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator().(*orchestrator)

	order := domain.Order{
		ID:         "order-replay",
		OperatorID: "op-1",
		Lines: []domain.OrderLine{
			{ID: "l-1", OrderID: "order-replay", ProductID: teddyBear().ID, Qty: 2, UnitPriceMinor: 89900, AmountMinor: 179800},
			{ID: "l-2", OrderID: "order-replay", ProductID: woodenTrain().ID, Qty: 1, UnitPriceMinor: 49900, AmountMinor: 49900},
		},
	}

	if err := o.adjustInventory(&order); err != nil {
		t.Fatalf("first adjustInventory: %v", err)
	}
	// Повтор того же заказа: журнал отклоняет дубликаты, остаток не меняется.
	if err := o.adjustInventory(&order); err != nil {
		t.Fatalf("replayed adjustInventory must succeed without changes: %v", err)
	}

	if got := f.inventory.stock[teddyBear().ID]; got != 8 {
		t.Errorf("teddy stock = %d, want 8 (decremented exactly once)", got)
	}
	if got := f.inventory.stock[woodenTrain().ID]; got != 4 {
		t.Errorf("train stock = %d, want 4 (decremented exactly once)", got)
	}
	if len(f.inventory.txns) != 2 {
		t.Errorf("ledger entries = %d, want 2 (one per product)", len(f.inventory.txns))
	}
}

func TestCheckout_LedgerFailureLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.inventory.appendErr[woodenTrain().ID] = errors.New("ledger unavailable")

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout must fail when the ledger rejects a line")
	}
	var partial *domain.PartialInventoryAdjustmentError
	if !errors.As(result.Err, &partial) {
		t.Fatalf("Err = %v, want PartialInventoryAdjustmentError", result.Err)
	}
	if len(partial.Failed) != 1 || partial.Failed[0] != woodenTrain().ID {
		t.Errorf("Failed = %v, want [%s]", partial.Failed, woodenTrain().ID)
	}
	// Списание идёт после записи в журнал: сорвавшаяся позиция остаток не трогает.
	if got := f.inventory.stock[woodenTrain().ID]; got != 5 {
		t.Errorf("train stock = %d, want 5 (failed line must not decrement)", got)
	}
	if got := f.inventory.stock[teddyBear().ID]; got != 8 {
		t.Errorf("teddy stock = %d, want 8", got)
	}
}

func TestCheckout_UnknownProductFailsValidation(t *testing.T) {
	f := newFixture(t)
	ghost := domain.Product{ID: "p-ghost", Name: "Ghost", UnitPriceMinor: 100}
	if err := f.cart.AddItem(ghost); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	result := f.orchestrator().Checkout(f.cart, Request{})

	if result.Success {
		t.Fatal("Checkout with unknown product must fail")
	}
	if !errors.Is(result.Err, domain.ErrProductNotFound) {
		t.Fatalf("Err = %v, want ErrProductNotFound", result.Err)
	}
	if f.orders.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", f.orders.createCalls)
	}
}

func TestCheckout_CartReleasedAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.orders.createErr = errors.New("boom")

	_ = f.orchestrator().Checkout(f.cart, Request{})

	// Корзина освобождена и снова доступна для мутаций.
	if err := f.cart.AddItem(teddyBear()); err != nil {
		t.Fatalf("cart must be mutable after failed checkout: %v", err)
	}
}

func TestCheckout_EmitsTimelineAndOutbox(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	result := f.orchestrator().Checkout(f.cart, Request{})
	if !result.Success {
		t.Fatalf("Checkout failed: %v", result.Err)
	}

	events, err := f.timeline.List(result.Order.ID)
	if err != nil {
		t.Fatalf("timeline List: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("timeline must contain at least one event")
	}
	if events[len(events)-1].Type != "OrderCompleted" {
		t.Errorf("last timeline event = %q, want OrderCompleted", events[len(events)-1].Type)
	}

	pending, err := f.outbox.PullPending(10)
	if err != nil {
		t.Fatalf("outbox PullPending: %v", err)
	}
	if len(pending) == 0 {
		t.Fatal("outbox must contain the completion event")
	}
	if pending[0].AggregateID != result.Order.ID {
		t.Errorf("outbox aggregate = %q, want %q", pending[0].AggregateID, result.Order.ID)
	}
}

func TestOrderNumberFormat(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	result := f.orchestrator().Checkout(f.cart, Request{})
	if !result.Success {
		t.Fatalf("Checkout failed: %v", result.Err)
	}
	if len(result.Order.Number) != len("ORD-000000") || result.Order.Number[:4] != "ORD-" {
		t.Errorf("Number = %q, want ORD-<6 digits>", result.Order.Number)
	}
	if result.Order.CreatedAt.After(time.Now().UTC()) {
		t.Error("CreatedAt must not be in the future")
	}
}
