package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Orders records checkout, promo and tracker outcomes. A nil *Orders is valid
// and records nothing.
type Orders struct {
	checkouts     *prometheus.CounterVec
	promos        *prometheus.CounterVec
	trackerEvents *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
}

func NewOrders(reg prometheus.Registerer) *Orders {
	if reg == nil {
		return nil
	}
	m := &Orders{
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_submissions_total",
			Help: "Checkout submissions by outcome.",
		}, []string{"outcome"}),
		promos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promo_resolutions_total",
			Help: "Promo code resolutions by outcome.",
		}, []string{"outcome"}),
		trackerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_events_total",
			Help: "Status events seen by order trackers, by result.",
		}, []string{"result"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_changes_total",
			Help: "Applied order status transitions by target status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.checkouts, m.promos, m.trackerEvents, m.statusChanges)
	return m
}

func (m *Orders) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(normalize(outcome)).Inc()
}

func (m *Orders) Promo(outcome string) {
	if m == nil {
		return
	}
	m.promos.WithLabelValues(normalize(outcome)).Inc()
}

func (m *Orders) TrackerEvent(result string) {
	if m == nil {
		return
	}
	m.trackerEvents.WithLabelValues(normalize(result)).Inc()
}

func (m *Orders) StatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(normalize(status)).Inc()
}

func normalize(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}
