package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("newCheckoutMetricsWithRegisterer should not return nil")
	}

	if metrics.checkoutStarted == nil {
		t.Error("checkoutStarted counter should not be nil")
	}
	if metrics.checkoutCompleted == nil {
		t.Error("checkoutCompleted counter should not be nil")
	}
	if metrics.checkoutFailed == nil {
		t.Error("checkoutFailed counter should not be nil")
	}
	if metrics.checkoutCompensated == nil {
		t.Error("checkoutCompensated counter should not be nil")
	}
	if metrics.checkoutDuration == nil {
		t.Error("checkoutDuration histogram should not be nil")
	}
	if metrics.stepDuration == nil {
		t.Error("stepDuration histogram vec should not be nil")
	}
	if metrics.inventoryAdjustments == nil {
		t.Error("inventoryAdjustments counter should not be nil")
	}
	if metrics.activeCheckouts == nil {
		t.Error("activeCheckouts gauge should not be nil")
	}
}

func TestNewCheckoutMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(reg)
	second := newCheckoutMetricsWithRegisterer(reg)

	// Повторная регистрация переиспользует уже зарегистрированные коллекторы.
	if first.checkoutStarted != second.checkoutStarted {
		t.Error("expected shared checkoutStarted collector on re-registration")
	}
}

func TestRecordCheckoutStarted(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutStarted()

	if got := counterValue(t, metrics.checkoutStarted); got != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", got)
	}
	if got := gaugeValue(t, metrics.activeCheckouts); got != 1.0 {
		t.Errorf("expected active checkouts 1.0, got %f", got)
	}

	metrics.RecordCheckoutFinished()
	if got := gaugeValue(t, metrics.activeCheckouts); got != 0.0 {
		t.Errorf("expected active checkouts 0.0 after finish, got %f", got)
	}
}

func TestRecordCheckoutOutcomes(t *testing.T) {
	metrics := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCheckoutCompleted()
	metrics.RecordCheckoutFailed()
	metrics.RecordCheckoutFailed()
	metrics.RecordCheckoutCompensated()
	metrics.RecordInventoryAdjustment()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()
	metrics.RecordCheckoutDuration(25 * time.Millisecond)
	metrics.RecordStepDuration("inventory", 5*time.Millisecond)

	if got := counterValue(t, metrics.checkoutCompleted); got != 1.0 {
		t.Errorf("expected completed 1.0, got %f", got)
	}
	if got := counterValue(t, metrics.checkoutFailed); got != 2.0 {
		t.Errorf("expected failed 2.0, got %f", got)
	}
	if got := counterValue(t, metrics.checkoutCompensated); got != 1.0 {
		t.Errorf("expected compensated 1.0, got %f", got)
	}
	if got := counterValue(t, metrics.inventoryAdjustments); got != 1.0 {
		t.Errorf("expected adjustments 1.0, got %f", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}
