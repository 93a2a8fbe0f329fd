package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/cart"
	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/poscore/internal/metrics"
	"github.com/vladislavdragonenkov/poscore/internal/pricing"
)

// Request описывает параметры одной попытки checkout.
type Request struct {
	CustomerID string
	Payment    domain.PaymentMethod
	Delivery   domain.DeliveryMethod
}

// Result — структурированный результат checkout.
// При Success=false Err содержит первопричину, Order может отсутствовать.
type Result struct {
	Success bool
	State   domain.CheckoutState
	Order   domain.Order
	Err     error
}

// Orchestrator проводит checkout как сагу:
// валидация → создание заказа → запись позиций → списание остатков.
// Сбой на записи позиций компенсируется удалением заказа; частичный сбой
// списания остатков не откатывается автоматически и фиксируется
// PartialInventoryAdjustmentError для ручного разбора.
type Orchestrator interface {
	Checkout(c *cart.Cart, req Request) Result
}

type orchestrator struct {
	orders        domain.OrderRepository
	products      domain.ProductRepository
	inventory     domain.InventoryRepository
	outbox        domain.OutboxRepository
	timeline      domain.TimelineRepository
	identity      domain.IdentityProvider
	logger        *log.Entry
	metrics       *metrics.CheckoutMetrics
	kafkaProducer *kafka.Producer // опциональный Kafka producer для event-driven архитектуры

	currency string
	taxRate  float64
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	inventory domain.InventoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	identity domain.IdentityProvider,
	currency string,
	taxRate float64,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &orchestrator{
		orders:    orders,
		products:  products,
		inventory: inventory,
		outbox:    outbox,
		timeline:  timeline,
		identity:  identity,
		currency:  currency,
		taxRate:   taxRate,
		logger:    logger,
		metrics:   metrics.NewCheckoutMetrics(),
	}
}

// NewOrchestratorWithKafka создаёт оркестратор с Kafka producer.
func NewOrchestratorWithKafka(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	inventory domain.InventoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	identity domain.IdentityProvider,
	currency string,
	taxRate float64,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) Orchestrator {
	o := NewOrchestrator(orders, products, inventory, outbox, timeline, identity, currency, taxRate, logger).(*orchestrator)
	o.kafkaProducer = kafkaProducer
	return o
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	orders domain.OrderRepository,
	products domain.ProductRepository,
	inventory domain.InventoryRepository,
	outbox domain.OutboxRepository,
	timeline domain.TimelineRepository,
	identity domain.IdentityProvider,
	currency string,
	taxRate float64,
	logger *log.Entry,
) Orchestrator {
	o := NewOrchestrator(orders, products, inventory, outbox, timeline, identity, currency, taxRate, logger).(*orchestrator)
	o.metrics = nil
	return o
}

// Checkout проводит один checkout от начала до конца.
// Корзина захватывается на время саги; очищается только при успехе.
func (o *orchestrator) Checkout(c *cart.Cart, req Request) Result {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCheckoutFinished()
			o.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	if err := c.Acquire(); err != nil {
		return o.fail(domain.CheckoutStateIdle, err)
	}
	defer c.Release()

	state := domain.CheckoutStateIdle

	// validate
	state = o.advance(state, domain.CheckoutStateValidating)
	lines, err := o.validate(c)
	if err != nil {
		o.logger.WithError(err).Warn("checkout validation failed")
		o.publishCheckoutEvent(kafka.EventTypeCheckoutFailed, "", map[string]interface{}{
			"reason": err.Error(),
			"step":   string(domain.CheckoutStepValidate),
		})
		return o.fail(state, err)
	}

	// create order
	state = o.advance(state, domain.CheckoutStateCreatingOrder)
	order, err := o.createOrder(lines, req)
	if err != nil {
		return o.fail(state, err)
	}

	// record lines
	state = o.advance(state, domain.CheckoutStateRecordingLines)
	if err := o.recordLines(&order); err != nil {
		return o.fail(state, err)
	}

	// adjust inventory
	state = o.advance(state, domain.CheckoutStateAdjustingInventory)
	if err := o.adjustInventory(&order); err != nil {
		return Result{Success: false, State: domain.CheckoutStateFailed, Order: order, Err: err}
	}

	// completed
	state = o.advance(state, domain.CheckoutStateCompleted)
	o.emitEvent(&order, "OrderCompleted", map[string]interface{}{
		"number":      order.Number,
		"total_minor": order.TotalMinor,
		"ts":          order.CreatedAt.Format(time.RFC3339Nano),
	})
	o.publishCheckoutEvent(kafka.EventTypeCheckoutCompleted, order.ID, map[string]interface{}{
		"number":      order.Number,
		"total_minor": order.TotalMinor,
	})

	c.Release()
	if err := c.Clear(); err != nil {
		// Корзина уже освобождена, Clear здесь не может отказать;
		// логируем на случай нарушения этого предположения.
		o.logger.WithError(err).Error("clear cart after successful checkout failed")
	}

	if o.metrics != nil {
		o.metrics.RecordCheckoutCompleted()
	}
	o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"number":   order.Number,
		"lines":    len(order.Lines),
	}).Info("checkout completed")

	return Result{Success: true, State: state, Order: order}
}

// validate проверяет корзину и возвращает снимок позиций.
func (o *orchestrator) validate(c *cart.Cart) ([]cart.Line, error) {
	stepStart := time.Now()
	defer o.recordStep(domain.CheckoutStepValidate, stepStart)

	if c.Empty() {
		return nil, domain.ErrEmptyCart
	}
	lines := c.Lines()
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, domain.ErrInvalidQuantity)
		}
		if o.products != nil {
			if _, err := o.products.Get(line.ProductID); err != nil {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, err)
			}
		}
	}
	return lines, nil
}

// createOrder рассчитывает итоги и сохраняет заголовок заказа.
func (o *orchestrator) createOrder(lines []cart.Line, req Request) (domain.Order, error) {
	stepStart := time.Now()
	defer o.recordStep(domain.CheckoutStepOrder, stepStart)

	now := time.Now().UTC()
	totals := pricing.ComputeTotals(pricingLines(lines), o.taxRate)

	var operatorID string
	if o.identity != nil {
		operator, err := o.identity.Operator()
		if err != nil {
			o.logger.WithError(err).Warn("resolve operator failed, recording order without operator")
		} else {
			operatorID = operator.ID
		}
	}

	payment := req.Payment
	if payment == "" {
		payment = domain.PaymentMethodCash
	}
	delivery := req.Delivery
	if delivery == "" {
		delivery = domain.DeliveryMethodPickup
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		Number:        domain.NewOrderNumber(now),
		CustomerID:    req.CustomerID,
		Status:        domain.OrderStatusCompleted,
		PaymentStatus: domain.PaymentStatusPaid,
		Payment:       payment,
		Delivery:      delivery,
		Currency:      o.currency,
		SubtotalMinor: totals.SubtotalMinor,
		TaxMinor:      totals.TaxMinor,
		TotalMinor:    totals.TotalMinor,
		OperatorID:    operatorID,
		CreatedAt:     now,
	}
	for _, line := range lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      line.ProductID,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			AmountMinor:    line.AmountMinor,
			CreatedAt:      now,
		})
	}

	if err := o.orders.Create(order); err != nil {
		o.logger.WithError(err).Error("create order failed")
		o.publishCheckoutEvent(kafka.EventTypeCheckoutFailed, order.ID, map[string]interface{}{
			"reason": err.Error(),
			"step":   string(domain.CheckoutStepOrder),
		})
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrOrderCreationFailed, err)
	}
	return order, nil
}

// recordLines сохраняет позиции; при сбое компенсирует заказ удалением.
func (o *orchestrator) recordLines(order *domain.Order) error {
	stepStart := time.Now()
	defer o.recordStep(domain.CheckoutStepLines, stepStart)

	if err := o.orders.CreateLines(order.ID, order.Lines); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("record order lines failed")
		o.compensateOrder(order, err)
		return fmt.Errorf("%w: %v", domain.ErrOrderLineRecordingFailed, err)
	}
	return nil
}

// adjustInventory списывает остатки по каждой позиции.
// Применённые списания при частичном сбое не откатываются: расхождение
// фиксируется в PartialInventoryAdjustmentError и разбирается вручную.
func (o *orchestrator) adjustInventory(order *domain.Order) error {
	stepStart := time.Now()
	defer o.recordStep(domain.CheckoutStepInventory, stepStart)

	applied := make([]string, 0, len(order.Lines))
	for i, line := range order.Lines {
		if err := o.adjustLine(order, line); err != nil {
			failed := make([]string, 0, len(order.Lines)-i)
			for _, rest := range order.Lines[i:] {
				failed = append(failed, rest.ProductID)
			}
			partial := &domain.PartialInventoryAdjustmentError{
				OrderID: order.ID,
				Applied: applied,
				Failed:  failed,
				Cause:   err,
			}
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"applied":  applied,
				"failed":   failed,
			}).Error("inventory adjustment incomplete")
			o.emitEvent(order, "InventoryAdjustmentIncomplete", map[string]interface{}{
				"reason":  err.Error(),
				"applied": applied,
				"failed":  failed,
			})
			o.publishInventoryEvent(kafka.EventTypeInventoryPartial, line.ProductID, order.ID, -line.Qty)
			if o.metrics != nil {
				o.metrics.RecordCheckoutFailed()
			}
			return partial
		}
		applied = append(applied, line.ProductID)
	}
	return nil
}

// adjustLine сначала фиксирует продажу в журнале, затем уменьшает остаток.
// Журнал — гарант "ровно один раз": дубликат пары (заказ, товар) означает,
// что списание уже применено предыдущей попыткой, и остаток не трогается.
func (o *orchestrator) adjustLine(order *domain.Order, line domain.OrderLine) error {
	txn := domain.InventoryTransaction{
		ID:         uuid.NewString(),
		ProductID:  line.ProductID,
		DeltaQty:   -line.Qty,
		Reason:     domain.InventoryReasonSale,
		OrderID:    order.ID,
		OperatorID: order.OperatorID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.inventory.AppendTransaction(txn); err != nil {
		if errors.Is(err, domain.ErrInventoryTxnDuplicate) {
			o.logger.WithFields(log.Fields{
				"order_id":   order.ID,
				"product_id": line.ProductID,
			}).Warn("inventory transaction already recorded, skipping stock decrement")
			return nil
		}
		return err
	}

	if err := o.inventory.AdjustStock(line.ProductID, -line.Qty); err != nil {
		return err
	}

	if o.metrics != nil {
		o.metrics.RecordInventoryAdjustment()
	}
	o.publishInventoryEvent(kafka.EventTypeInventoryAdjusted, line.ProductID, order.ID, -line.Qty)
	return nil
}

// compensateOrder удаляет заказ, оставшийся без позиций.
func (o *orchestrator) compensateOrder(order *domain.Order, rootErr error) {
	stepStart := time.Now()
	defer o.recordStep(domain.CheckoutStepCompensate, stepStart)

	if o.metrics != nil {
		o.metrics.RecordCheckoutCompensated()
	}
	if err := o.orders.Delete(order.ID); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("compensating order delete failed")
		return
	}
	o.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"reason":   rootErr.Error(),
	}).Info("order deleted after line recording failure")
	o.publishCheckoutEvent(kafka.EventTypeCheckoutFailed, order.ID, map[string]interface{}{
		"reason": rootErr.Error(),
		"step":   string(domain.CheckoutStepLines),
	})
}

func (o *orchestrator) fail(state domain.CheckoutState, err error) Result {
	if o.metrics != nil {
		o.metrics.RecordCheckoutFailed()
	}
	return Result{Success: false, State: domain.CheckoutStateFailed, Err: err, Order: domain.Order{}}
}

// advance переводит автомат в следующее состояние, проверяя допустимость перехода.
func (o *orchestrator) advance(from, to domain.CheckoutState) domain.CheckoutState {
	if !from.CanTransition(to) {
		// Нарушение порядка шагов — это баг оркестратора, а не входных данных.
		o.logger.WithFields(log.Fields{
			"from": string(from),
			"to":   string(to),
		}).Error("illegal checkout state transition")
		return from
	}
	return to
}

func (o *orchestrator) recordStep(step domain.CheckoutStep, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStepDuration(string(step), time.Since(start))
	}
}

// emitEvent пишет событие в outbox и timeline. Ошибки не прерывают checkout.
func (o *orchestrator) emitEvent(order *domain.Order, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	if o.outbox != nil {
		msg := domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     eventType,
			Payload:       data,
		}
		if _, err := o.outbox.Enqueue(msg); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Error("enqueue event failed")
		} else if o.metrics != nil {
			o.metrics.RecordOutboxEvent()
		}
	}

	if o.timeline != nil {
		var reason string
		if r, ok := payload["reason"].(string); ok {
			reason = r
		}
		event := domain.TimelineEvent{
			OrderID:    order.ID,
			Type:       eventType,
			Reason:     reason,
			OperatorID: order.OperatorID,
			Occurred:   time.Now().UTC(),
		}
		if err := o.timeline.Append(event); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"order_id": order.ID,
				"event":    eventType,
			}).Warn("append timeline event failed")
		} else if o.metrics != nil {
			o.metrics.RecordTimelineEvent()
		}
	}
}

// publishCheckoutEvent публикует событие checkout в Kafka (если producer настроен).
func (o *orchestrator) publishCheckoutEvent(eventType kafka.EventType, orderID string, metadata map[string]interface{}) {
	if o.kafkaProducer == nil {
		return
	}

	event := kafka.NewCheckoutEvent(eventType, orderID, metadata)
	if err := o.kafkaProducer.PublishEvent(kafka.TopicCheckoutEvents, orderID, event); err != nil {
		// Kafka опциональна: логируем и продолжаем.
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"order_id":   orderID,
		}).Warn("failed to publish checkout event to kafka")
	}
}

// publishInventoryEvent публикует событие движения остатков в Kafka.
func (o *orchestrator) publishInventoryEvent(eventType kafka.EventType, productID, orderID string, deltaQty int32) {
	if o.kafkaProducer == nil {
		return
	}

	event := kafka.NewInventoryEvent(eventType, productID, orderID, deltaQty)
	if err := o.kafkaProducer.PublishEvent(kafka.TopicInventoryEvents, productID, event); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"product_id": productID,
			"order_id":   orderID,
		}).Warn("failed to publish inventory event to kafka")
	}
}

func pricingLines(lines []cart.Line) []pricing.Line {
	result := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		result = append(result, pricing.Line{Qty: line.Qty, UnitPriceMinor: line.UnitPriceMinor})
	}
	return result
}

var _ Orchestrator = (*orchestrator)(nil)
