// Package metrics provides a Prometheus-backed implementation of
// appclient.Metrics. Collection is opt-in: pass the result of NewPrometheus
// in appclient.Config, or leave Metrics nil for zero overhead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/oceanpad/atlasdata/pkg/appclient"
)

var _ appclient.Metrics = (*Prometheus)(nil)

// Prometheus counts client events. It implements appclient.Metrics.
type Prometheus struct {
	logins    *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	calls     *prometheus.CounterVec
	retries   prometheus.Counter
}

// NewPrometheus registers the client metrics on reg and returns the
// collector. Use prometheus.DefaultRegisterer for the default registry.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlasdata",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login network attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlasdata",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Token refresh network attempts by outcome. Deduplicated callers share one attempt.",
		}, []string{"outcome"}),
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atlasdata",
			Subsystem: "dataapi",
			Name:      "calls_total",
			Help:      "Data API operations by action and outcome.",
		}, []string{"action", "outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "atlasdata",
			Subsystem: "dataapi",
			Name:      "retries_total",
			Help:      "Data API operations that were retried after a token refresh.",
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// LoginFinished implements appclient.Metrics.
func (p *Prometheus) LoginFinished(provider string, err error) {
	p.logins.WithLabelValues(provider, outcome(err)).Inc()
}

// RefreshFinished implements appclient.Metrics.
func (p *Prometheus) RefreshFinished(err error) {
	p.refreshes.WithLabelValues(outcome(err)).Inc()
}

// CallFinished implements appclient.Metrics.
func (p *Prometheus) CallFinished(action string, retried bool, err error) {
	p.calls.WithLabelValues(action, outcome(err)).Inc()
	if retried {
		p.retries.Inc()
	}
}
