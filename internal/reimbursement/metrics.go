package reimbursement

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/travel-reimburse/internal/claim"
)

// Metrics holds the service's Prometheus counters. Each instance owns its
// registry so several services can live in one process.
//
// Metrics:
//   - reimburse_invoices_processed_total{category,source}
//   - reimburse_invoices_manual_input_total
//   - reimburse_scan_failures_total
//   - reimburse_claims_generated_total{status}
type Metrics struct {
	registry *prometheus.Registry

	InvoicesProcessed *prometheus.CounterVec
	ManualInput       prometheus.Counter
	ScanFailures      prometheus.Counter
	ClaimsGenerated   *prometheus.CounterVec
}

// NewMetrics creates the counters on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		InvoicesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reimburse_invoices_processed_total",
				Help: "Total number of invoices normalized",
			},
			[]string{"category", "source"}, // source: "upload" or "manual"
		),
		ManualInput: factory.NewCounter(prometheus.CounterOpts{
			Name: "reimburse_invoices_manual_input_total",
			Help: "Total number of invoices missing required fields after normalization",
		}),
		ScanFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "reimburse_scan_failures_total",
			Help: "Total number of failed extraction calls",
		}),
		ClaimsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reimburse_claims_generated_total",
				Help: "Total number of generated claims",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) recordInvoice(inv claim.Invoice, source string) {
	m.InvoicesProcessed.WithLabelValues(string(inv.Category), source).Inc()
	if inv.NeedsManualInput {
		m.ManualInput.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
