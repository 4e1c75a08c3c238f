package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the webhook ingest and
// report generation flows.
type WebhookMetrics struct {
	ingestTotal       *prometheus.CounterVec
	reportTotal       *prometheus.CounterVec
	generationSeconds prometheus.Histogram
	ingestLatency     prometheus.Histogram
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicereports",
			Subsystem: "webhook",
			Name:      "ingest_total",
			Help:      "Total ingested conversation webhooks by extraction strategy",
		}, []string{"strategy"}),
		reportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicereports",
			Subsystem: "report",
			Name:      "requests_total",
			Help:      "Total report endpoint requests by outcome",
		}, []string{"outcome"}),
		generationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voicereports",
			Subsystem: "report",
			Name:      "generation_seconds",
			Help:      "Latency of LLM report generation",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voicereports",
			Subsystem: "webhook",
			Name:      "ingest_latency_seconds",
			Help:      "Latency of webhook ingest processing",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ingestTotal, m.reportTotal, m.generationSeconds, m.ingestLatency)
	return m
}

func (m *WebhookMetrics) ObserveIngest(strategy string, seconds float64) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(strategy).Inc()
	m.ingestLatency.Observe(seconds)
}

func (m *WebhookMetrics) ObserveReport(outcome string) {
	if m == nil {
		return
	}
	m.reportTotal.WithLabelValues(outcome).Inc()
}

func (m *WebhookMetrics) ObserveGeneration(seconds float64) {
	if m == nil {
		return
	}
	m.generationSeconds.Observe(seconds)
}
