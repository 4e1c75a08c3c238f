package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWebhookMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.ObserveIngest("custom", 0.02)
	m.ObserveReport("completed")
	m.ObserveGeneration(1.5)
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.ObserveIngest("sentinel", 0.1)
	m.ObserveReport("failed")
	m.ObserveGeneration(0.1)
}
