package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/poscore/internal/domain"
	"github.com/vladislavdragonenkov/poscore/internal/service/checkout"
	"github.com/vladislavdragonenkov/poscore/internal/service/identity"
	"github.com/vladislavdragonenkov/poscore/internal/storage/memory"
)

type testEnv struct {
	server   *httptest.Server
	orders   domain.OrderRepository
	products domain.ProductRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	orders := memory.NewOrderRepository()
	products := memory.NewProductRepository()
	inventory := memory.NewInventoryRepository(products)
	outbox := memory.NewOutboxRepository()
	timeline := memory.NewTimelineRepository()
	idem := memory.NewIdempotencyRepository()

	seed := []domain.Product{
		{ID: "p-teddy", Name: "Teddy Bear", Category: "Toys", UnitPriceMinor: 89900, StockQty: 10},
		{ID: "p-train", Name: "Wooden Train", Category: "Toys", UnitPriceMinor: 49900, StockQty: 5},
	}
	for _, p := range seed {
		if err := products.Put(p); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}

	orchestrator := checkout.NewOrchestratorWithoutMetrics(
		orders, products, inventory, outbox, timeline,
		identity.NewStaticProvider("op-1", "Asha"), "INR", 0.18, nil,
	)

	mux := http.NewServeMux()
	NewHandler(orchestrator, orders, products, timeline, idem, nil).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, orders: orders, products: products}
}

func postCheckout(t *testing.T, env *testEnv, body string, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/checkout", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

const validCheckoutBody = `{
	"payment_method": "card",
	"items": [
		{"product_id": "p-teddy", "qty": 2},
		{"product_id": "p-train", "qty": 1}
	]
}`

func TestHandleCheckout_Success(t *testing.T) {
	env := newTestEnv(t)

	resp := postCheckout(t, env, validCheckoutBody, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Order   struct {
			ID            string `json:"id"`
			Number        string `json:"number"`
			SubtotalMinor int64  `json:"subtotal_minor"`
			TaxMinor      int64  `json:"tax_minor"`
			TotalMinor    int64  `json:"total_minor"`
			Lines         []struct {
				ProductID string `json:"product_id"`
				Qty       int32  `json:"qty"`
			} `json:"lines"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Success {
		t.Fatal("success = false, want true")
	}
	if len(result.Order.Lines) != 2 {
		t.Errorf("lines = %d, want 2", len(result.Order.Lines))
	}
	if result.Order.SubtotalMinor != 229700 {
		t.Errorf("subtotal = %d, want 229700", result.Order.SubtotalMinor)
	}
	if result.Order.TotalMinor != result.Order.SubtotalMinor+result.Order.TaxMinor {
		t.Error("total must equal subtotal+tax")
	}

	teddy, err := env.products.Get("p-teddy")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if teddy.StockQty != 8 {
		t.Errorf("teddy stock = %d, want 8", teddy.StockQty)
	}
}

func TestHandleCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)

	resp := postCheckout(t, env, `{"items": []}`, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleCheckout_UnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	resp := postCheckout(t, env, `{"items": [{"product_id": "ghost", "qty": 1}]}`, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleCheckout_InsufficientStock(t *testing.T) {
	env := newTestEnv(t)

	resp := postCheckout(t, env, `{"items": [{"product_id": "p-train", "qty": 50}]}`, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	var result struct {
		Failed []string `json:"failed_product_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "p-train" {
		t.Errorf("failed_product_ids = %v, want [p-train]", result.Failed)
	}
}

func TestHandleCheckout_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)

	first := postCheckout(t, env, validCheckoutBody, "key-1")
	defer first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.StatusCode)
	}
	var firstResult struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(first.Body).Decode(&firstResult); err != nil {
		t.Fatalf("decode first: %v", err)
	}

	second := postCheckout(t, env, validCheckoutBody, "key-1")
	defer second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.StatusCode)
	}
	var secondResult struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(second.Body).Decode(&secondResult); err != nil {
		t.Fatalf("decode second: %v", err)
	}

	if firstResult.Order.ID != secondResult.Order.ID {
		t.Error("replay must return the original order")
	}

	orders, err := env.orders.ListRecent(10)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("orders = %d, want 1 (no duplicate checkout)", len(orders))
	}
}

func TestHandleCheckout_IdempotencyHashMismatch(t *testing.T) {
	env := newTestEnv(t)

	first := postCheckout(t, env, validCheckoutBody, "key-2")
	first.Body.Close()

	other := `{"items": [{"product_id": "p-train", "qty": 1}]}`
	second := postCheckout(t, env, other, "key-2")
	defer second.Body.Close()

	if second.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", second.StatusCode)
	}
}

func TestHandleGetOrder(t *testing.T) {
	env := newTestEnv(t)

	resp := postCheckout(t, env, validCheckoutBody, "")
	var created struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	resp.Body.Close()

	got, err := http.Get(env.server.URL + "/v1/orders/" + created.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", got.StatusCode)
	}

	missing, err := http.Get(env.server.URL + "/v1/orders/does-not-exist")
	if err != nil {
		t.Fatalf("get missing order: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", missing.StatusCode)
	}
}

func TestHandleListProducts(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/products")
	if err != nil {
		t.Fatalf("get products: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Products) != 2 {
		t.Errorf("products = %d, want 2", len(result.Products))
	}
}

func TestHandlePutProduct(t *testing.T) {
	env := newTestEnv(t)

	body := `{"name": "Puzzle", "category": "Toys", "unit_price_minor": 25000, "stock_qty": 3}`
	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/v1/products/p-puzzle", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	product, err := env.products.Get("p-puzzle")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Name != "Puzzle" || product.StockQty != 3 {
		t.Errorf("product = %+v", product)
	}
}
