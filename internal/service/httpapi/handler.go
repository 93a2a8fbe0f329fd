package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/poscore/internal/cart"
	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/service/checkout"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// Handler отдаёт HTTP API кассы: checkout, заказы, каталог.
type Handler struct {
	orchestrator checkout.Orchestrator
	orders       domain.OrderRepository
	products     domain.ProductRepository
	timeline     domain.TimelineRepository
	idempotency  domain.IdempotencyRepository
	logger       *log.Entry
}

// NewHandler создаёт HTTP handler.
func NewHandler(
	orchestrator checkout.Orchestrator,
	orders domain.OrderRepository,
	products domain.ProductRepository,
	timeline domain.TimelineRepository,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{
		orchestrator: orchestrator,
		orders:       orders,
		products:     products,
		timeline:     timeline,
		idempotency:  idempotency,
		logger:       logger,
	}
}

// Register вешает маршруты API на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/checkout", h.handleCheckout)
	mux.HandleFunc("GET /v1/orders", h.handleListOrders)
	mux.HandleFunc("GET /v1/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("GET /v1/orders/{id}/timeline", h.handleOrderTimeline)
	mux.HandleFunc("GET /v1/products", h.handleListProducts)
	mux.HandleFunc("PUT /v1/products/{id}", h.handlePutProduct)
}

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

type checkoutRequest struct {
	CustomerID string         `json:"customer_id,omitempty"`
	Payment    string         `json:"payment_method,omitempty"`
	Delivery   string         `json:"delivery_method,omitempty"`
	Items      []checkoutItem `json:"items"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Applied []string `json:"applied_product_ids,omitempty"`
	Failed  []string `json:"failed_product_ids,omitempty"`
}

type checkoutResponse struct {
	Success bool      `json:"success"`
	Order   orderView `json:"order"`
}

type orderView struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	Payment       string          `json:"payment_method"`
	Delivery      string          `json:"delivery_method"`
	Currency      string          `json:"currency"`
	SubtotalMinor int64           `json:"subtotal_minor"`
	TaxMinor      int64           `json:"tax_minor"`
	TotalMinor    int64           `json:"total_minor"`
	Lines         []orderLineView `json:"lines,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type orderLineView struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	AmountMinor    int64  `json:"amount_minor"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}

	key := r.Header.Get(idempotencyKeyHeader)
	if key != "" {
		if done := h.beginIdempotent(w, key, body); done {
			return
		}
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.finishCheckout(w, key, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	c, err := h.buildCart(req.Items)
	if err != nil {
		h.finishCheckout(w, key, statusForError(err), errorResponse{Error: err.Error()})
		return
	}

	result := h.orchestrator.Checkout(c, checkout.Request{
		CustomerID: req.CustomerID,
		Payment:    domain.PaymentMethod(req.Payment),
		Delivery:   domain.DeliveryMethod(req.Delivery),
	})

	if !result.Success {
		resp := errorResponse{Error: result.Err.Error()}
		var partial *domain.PartialInventoryAdjustmentError
		if errors.As(result.Err, &partial) {
			resp.Applied = partial.Applied
			resp.Failed = partial.Failed
		}
		h.finishCheckout(w, key, statusForError(result.Err), resp)
		return
	}

	h.finishCheckout(w, key, http.StatusOK, checkoutResponse{
		Success: true,
		Order:   toOrderView(result.Order),
	})
}

// buildCart собирает корзину из запроса, сверяясь с каталогом.
func (h *Handler) buildCart(items []checkoutItem) (*cart.Cart, error) {
	c := cart.New()
	for _, item := range items {
		if item.Qty <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		product, err := h.products.Get(item.ProductID)
		if err != nil {
			return nil, err
		}
		if err := c.AddItem(product); err != nil {
			return nil, err
		}
		if err := c.UpdateQuantity(product.ID, item.Qty); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// beginIdempotent регистрирует ключ; true означает, что ответ уже записан.
func (h *Handler) beginIdempotent(w http.ResponseWriter, key string, body []byte) bool {
	if h.idempotency == nil {
		return false
	}

	hash := sha256.Sum256(body)
	requestHash := hex.EncodeToString(hash[:])

	_, err := h.idempotency.CreateProcessing(key, requestHash, time.Now().UTC().Add(idempotencyTTL))
	if err == nil {
		return false
	}
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		h.logger.WithError(err).Warn("idempotency register failed, proceeding without replay protection")
		return false
	}

	record, getErr := h.idempotency.Get(key)
	if getErr != nil {
		h.logger.WithError(getErr).Warn("idempotency lookup failed")
		h.writeError(w, http.StatusInternalServerError, "idempotency lookup failed")
		return true
	}

	if record.RequestHash != requestHash {
		h.writeError(w, http.StatusUnprocessableEntity, domain.ErrIdempotencyHashMismatch.Error())
		return true
	}

	switch {
	case record.InFlight():
		h.writeError(w, http.StatusConflict, "request is already being processed")
	case record.Replayable():
		// Повтор завершённого запроса: отдаём сохранённый ответ.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	default:
		h.writeError(w, http.StatusConflict, "idempotency key is in an unexpected state")
	}
	return true
}

// finishCheckout пишет ответ и фиксирует его за idempotency-ключом.
func (h *Handler) finishCheckout(w http.ResponseWriter, key string, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.WithError(err).Error("marshal checkout response failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if key != "" && h.idempotency != nil {
		var markErr error
		if status == http.StatusOK {
			markErr = h.idempotency.MarkDone(key, data, status)
		} else {
			markErr = h.idempotency.MarkFailed(key, data, status)
		}
		if markErr != nil {
			h.logger.WithError(markErr).WithField("key", key).Warn("idempotency mark failed")
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.WithError(err).Error("get order failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListRecent(50)
	if err != nil {
		h.logger.WithError(err).Error("list orders failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *Handler) handleOrderTimeline(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if _, err := h.orders.Get(orderID); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.WithError(err).Error("get order failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	events, err := h.timeline.List(orderID)
	if err != nil {
		h.logger.WithError(err).Error("list timeline failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type eventView struct {
		Type     string    `json:"type"`
		Reason   string    `json:"reason,omitempty"`
		Occurred time.Time `json:"occurred_at"`
	}
	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, eventView{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "events": views})
}

func (h *Handler) handleListProducts(w http.ResponseWriter, _ *http.Request) {
	products, err := h.products.List()
	if err != nil {
		h.logger.WithError(err).Error("list products failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	type productView struct {
		ID             string `json:"id"`
		Name           string `json:"name"`
		Category       string `json:"category,omitempty"`
		UnitPriceMinor int64  `json:"unit_price_minor"`
		StockQty       int32  `json:"stock_qty"`
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, productView{
			ID:             p.ID,
			Name:           p.Name,
			Category:       p.Category,
			UnitPriceMinor: p.UnitPriceMinor,
			StockQty:       p.StockQty,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"products": views})
}

func (h *Handler) handlePutProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		Category       string `json:"category"`
		UnitPriceMinor int64  `json:"unit_price_minor"`
		StockQty       int32  `json:"stock_qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	product := domain.Product{
		ID:             r.PathValue("id"),
		Name:           req.Name,
		Category:       req.Category,
		UnitPriceMinor: req.UnitPriceMinor,
		StockQty:       req.StockQty,
	}
	if violations := product.ValidateInvariants(); len(violations) > 0 {
		h.writeError(w, http.StatusBadRequest, errors.Join(violations...).Error())
		return
	}
	if err := h.products.Put(product); err != nil {
		h.logger.WithError(err).Error("put product failed")
		h.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": product.ID})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("write response failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message})
}

// statusForError переводит доменную ошибку в HTTP статус.
func statusForError(err error) int {
	switch {
	case domain.IsValidationError(err), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusBadRequest
	case domain.IsPartialAdjustment(err), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func toOrderView(order domain.Order) orderView {
	view := orderView{
		ID:            order.ID,
		Number:        order.Number,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Payment:       string(order.Payment),
		Delivery:      string(order.Delivery),
		Currency:      order.Currency,
		SubtotalMinor: order.SubtotalMinor,
		TaxMinor:      order.TaxMinor,
		TotalMinor:    order.TotalMinor,
		CreatedAt:     order.CreatedAt,
	}
	for _, line := range order.Lines {
		view.Lines = append(view.Lines, orderLineView{
			ProductID:      line.ProductID,
			Name:           line.Name,
			Qty:            line.Qty,
			UnitPriceMinor: line.UnitPriceMinor,
			AmountMinor:    line.AmountMinor,
		})
	}
	return view
}
