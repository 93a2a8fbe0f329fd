package app

import (
	"context"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.PostgresDSN != "" {
		t.Errorf("PostgresDSN = %q, want empty (in-memory by default)", cfg.PostgresDSN)
	}
	if cfg.TaxRate != 0.18 {
		t.Errorf("TaxRate = %v, want 0.18", cfg.TaxRate)
	}
	if cfg.Currency != "INR" {
		t.Errorf("Currency = %q, want INR", cfg.Currency)
	}
}

func TestNewDependencies_InMemory(t *testing.T) {
	deps, err := NewDependencies(context.Background(), DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewDependencies() error = %v", err)
	}
	defer deps.Close()

	if deps.Orders == nil || deps.Products == nil || deps.Inventory == nil {
		t.Fatal("core repositories must be initialized")
	}
	if deps.Outbox == nil || deps.Timeline == nil || deps.Idempotency == nil {
		t.Fatal("support repositories must be initialized")
	}
	if deps.Store != nil {
		t.Error("Store must be nil for in-memory mode")
	}
	if deps.Logger == nil {
		t.Error("Logger must not be nil")
	}
}

func TestSetupKafka_EmptyBrokers(t *testing.T) {
	res, err := setupKafka("  ", nil)
	if err != nil {
		t.Fatalf("setupKafka(blank) error = %v", err)
	}
	if res != nil {
		t.Error("resources must be nil when brokers are not configured")
	}
	// close на nil-ресурсах не должен паниковать.
	res.close(nil)
}
