package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombor/invoice-intake/internal/einvoice"
)

// Metrics tracks invoice parsing outcomes and imports
type Metrics struct {
	ParseTotal      *prometheus.CounterVec
	ParseDuration   prometheus.Histogram
	ExpensesCreated prometheus.Counter
}

// NewMetrics creates the intake metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ParseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_intake_parse_total",
			Help: "Total number of parsed invoice documents by outcome",
		}, []string{"outcome"}),
		ParseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "invoice_intake_parse_duration_seconds",
			Help:    "Duration of invoice document parsing",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ExpensesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "invoice_intake_expenses_created_total",
			Help: "Total number of expenses created from imported invoices",
		}),
	}
}

// ObserveParse records the duration and outcome of one parse.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveParse(start time.Time, err error) {
	m.ParseDuration.Observe(time.Since(start).Seconds())
	m.ParseTotal.WithLabelValues(parseOutcome(err)).Inc()
}

// IncrementExpensesCreated records a successful import
func (m *Metrics) IncrementExpensesCreated() {
	m.ExpensesCreated.Inc()
}

func parseOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var perr *einvoice.ParseError
	if errors.As(err, &perr) {
		return strings.ReplaceAll(string(perr.Kind), " ", "_")
	}
	return "error"
}
