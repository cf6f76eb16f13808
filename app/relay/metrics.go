package relay

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	e "nuclight.org/feedback-tg-bot/pkg/entities"
)

// Metrics counts relay events. A nil *Metrics counts nothing.
type Metrics struct {
	events *prometheus.CounterVec
	denied *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_total",
			Help:      "Handled messages by side and outcome.",
		}, []string{"side", "outcome"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "access_denied_total",
			Help:      "Updates rejected by access policies.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.events, m.denied)

	return m
}

// AccessDenied counts an update rejected by an access policy.
func (m *Metrics) AccessDenied(reason string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(reason).Inc()
}

func (m *Metrics) observe(side e.Direction, outcome Outcome, err error) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(side), outcomeLabel(outcome, err)).Inc()
}

func outcomeLabel(outcome Outcome, err error) string {
	switch {
	case err == nil:
		return string(outcome)
	case errors.Is(err, ErrCopyFailed):
		return "copy_failed"
	case errors.Is(err, ErrLinkNotSaved):
		return "link_failed"
	default:
		return "lookup_failed"
	}
}
