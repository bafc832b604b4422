package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	deliveries *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workbot_deliveries_total",
				Help: "Envelopes handed to the notification channel, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
	}
	reg.MustRegister(m.deliveries)
	return m
}

func (m *Metrics) observe(env Envelope, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.WithLabelValues(env.Label(), outcome).Inc()
}
