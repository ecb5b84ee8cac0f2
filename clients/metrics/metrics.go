package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemnawaveRequestDuration tracks latency of panel API calls
	RemnawaveRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "remnawave_request_duration_seconds",
			Help: "Duration of Remnawave panel API requests in seconds",
			Buckets: []float64{
				0.05, // 50ms
				0.1,  // 100ms
				0.25, // 250ms
				0.5,  // 500ms
				1.0,  // 1s
				2.5,  // 2.5s
				5.0,  // 5s
				10.0, // 10s
				30.0, // 30s
			},
		},
		[]string{"op", "status"},
	)

	AccountsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_accounts_created_total",
			Help: "Promo account creation attempts by result",
		},
		[]string{"result"}, // success or failure
	)

	AccountsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_accounts_deleted_total",
			Help: "Used promo account deletions by result",
		},
		[]string{"result"},
	)

	// CreateShape counts which creation payload shape the panel accepted
	CreateShape = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_create_shape_total",
			Help: "Accepted account creation payload shapes",
		},
		[]string{"shape"},
	)

	BotUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Telegram updates handled by kind",
		},
		[]string{"kind"},
	)
)

func RecordRemnawaveRequest(op, status string, seconds float64) {
	RemnawaveRequestDuration.WithLabelValues(op, status).Observe(seconds)
}

func RecordCreated(ok bool) {
	AccountsCreated.WithLabelValues(result(ok)).Inc()
}

func RecordDeleted(ok bool) {
	AccountsDeleted.WithLabelValues(result(ok)).Inc()
}

func RecordShape(shape string) {
	CreateShape.WithLabelValues(shape).Inc()
}

func RecordUpdate(kind string) {
	BotUpdates.WithLabelValues(kind).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
