package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Metrics holds the study counters on their own registry.
type Metrics struct {
	registry *prometheus.Registry
	reviews  *prometheus.CounterVec
	sessions *prometheus.CounterVec
	cardsDue prometheus.Gauge
}

// New creates and registers the study metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knolstudy",
			Name:      "reviews_total",
			Help:      "Card reviews recorded, by quality rating.",
		}, []string{"quality"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "knolstudy",
			Name:      "sessions_completed_total",
			Help:      "Study sessions ended, by session type.",
		}, []string{"type"}),
		cardsDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "knolstudy",
			Name:      "cards_due",
			Help:      "Cards due for review at the last snapshot save.",
		}),
	}
	m.registry.MustRegister(m.reviews, m.sessions, m.cardsDue)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveReview counts one review under its quality.
func (m *Metrics) ObserveReview(q domain.Quality) {
	m.reviews.WithLabelValues(strconv.Itoa(int(q))).Inc()
}

// ObserveSession counts a completed session under its type.
func (m *Metrics) ObserveSession(s domain.StudySession) {
	m.sessions.WithLabelValues(string(s.Type)).Inc()
}

// SetCardsDue records how many cards are due as of the last save.
func (m *Metrics) SetCardsDue(n int) {
	m.cardsDue.Set(float64(n))
}
