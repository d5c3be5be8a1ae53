// Package metrics exports throttle decisions to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Morditux/throttle"
)

// Metrics holds the throttle collectors. One Metrics can serve many
// throttles, each identified by its limiter label.
type Metrics struct {
	reg           prometheus.Registerer
	decisionTotal *prometheus.CounterVec
	lockoutTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// Labels are limited to the limiter name and outcome, never the key.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reg: reg,
		decisionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "throttle_decisions_total",
			Help: "Throttle decisions by limiter and outcome",
		}, []string{"limiter", "outcome"}),
		lockoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "throttle_lockouts_total",
			Help: "Lockouts started by limiter",
		}, []string{"limiter"}),
	}

	for _, c := range []prometheus.Collector{m.decisionTotal, m.lockoutTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observer returns a callback for throttle.WithObserver that counts the
// decisions of the named limiter.
func (m *Metrics) Observer(limiter string) func(throttle.Outcome) {
	// resolve label sets once, the callback runs on every event
	byOutcome := make(map[throttle.Outcome]prometheus.Counter)
	for _, o := range []throttle.Outcome{
		throttle.Counted,
		throttle.WindowRestarted,
		throttle.LockoutExpired,
		throttle.LockoutStarted,
		throttle.Locked,
	} {
		byOutcome[o] = m.decisionTotal.WithLabelValues(limiter, o.String())
	}
	lockouts := m.lockoutTotal.WithLabelValues(limiter)

	return func(o throttle.Outcome) {
		if c, ok := byOutcome[o]; ok {
			c.Inc()
		}
		if o == throttle.LockoutStarted {
			lockouts.Inc()
		}
	}
}

// TrackKeys registers a gauge reporting how many keys the named limiter
// tracks, typically Keyed.Len.
func (m *Metrics) TrackKeys(limiter string, count func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "throttle_tracked_keys",
		Help:        "Keys currently tracked by a keyed throttle",
		ConstLabels: prometheus.Labels{"limiter": limiter},
	}, func() float64 {
		return float64(count())
	}))
}
