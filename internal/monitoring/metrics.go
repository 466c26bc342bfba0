package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Payment initiation attempts by result",
		},
		[]string{"result"},
	)

	statusQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_queries_total",
			Help: "Status queries issued by pollers and re-checks",
		},
		[]string{"source", "result"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_status_transitions_total",
			Help: "Observed payment status transitions",
		},
		[]string{"from", "to"},
	)

	activeTrackers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_trackers_active",
			Help: "Number of status trackers currently polling",
		},
	)

	callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_callbacks_total",
			Help: "Gateway return callbacks by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordInitiation counts an initiation attempt ("ok", "rejected", "error").
func RecordInitiation(result string) {
	initiations.WithLabelValues(result).Inc()
}

// RecordStatusQuery counts one status query from the given source.
func RecordStatusQuery(source string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	statusQueries.WithLabelValues(source, result).Inc()
}

// RecordTransition counts a status change.
func RecordTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

// RecordCallback counts a gateway callback outcome.
func RecordCallback(outcome string) {
	callbacks.WithLabelValues(outcome).Inc()
}

// TrackerStarted and TrackerStopped maintain the active tracker gauge.
func TrackerStarted() { activeTrackers.Inc() }
func TrackerStopped() { activeTrackers.Dec() }

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
