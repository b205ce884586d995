// Package lockmetrics exports lock lifecycle metrics to Prometheus.
package lockmetrics

import (
	"errors"
	"time"

	"github.com/DataDog/zklock/cluster"
	"github.com/DataDog/zklock/cluster/zookeeper"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer implements zookeeper.Observer.
type Observer struct {
	acquired prometheus.Counter
	released prometheus.Counter
	failures *prometheus.CounterVec
	wait     prometheus.Histogram
	hold     prometheus.Histogram
	held     prometheus.Gauge
	session  prometheus.Gauge
}

// New creates an Observer with its collectors registered on reg. Every
// series carries a lock label set to lockPath.
func New(reg prometheus.Registerer, lockPath string) *Observer {
	labels := prometheus.Labels{"lock": lockPath}

	o := &Observer{
		acquired: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "zklock_acquisitions_total",
			Help:        "Total number of locks acquired",
			ConstLabels: labels,
		}),
		released: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "zklock_releases_total",
			Help:        "Total number of locks released",
			ConstLabels: labels,
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "zklock_failures_total",
			Help:        "Total number of failed lock attempts by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "zklock_wait_seconds",
			Help:        "Time spent queued before acquiring the lock",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		hold: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "zklock_hold_seconds",
			Help:        "Time the lock was held",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		held: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "zklock_held",
			Help:        "1 while the lock is held",
			ConstLabels: labels,
		}),
		session: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "zklock_session_connected",
			Help:        "1 while the coordination store session is connected",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(o.acquired, o.released, o.failures, o.wait, o.hold, o.held, o.session)

	return o
}

// SessionState implements zookeeper.Observer.
func (o *Observer) SessionState(s cluster.SessionState) {
	if s == cluster.StateConnected {
		o.session.Set(1)
		return
	}
	o.session.Set(0)
}

// Acquired implements zookeeper.Observer.
func (o *Observer) Acquired(wait time.Duration) {
	o.acquired.Inc()
	o.wait.Observe(wait.Seconds())
	o.held.Set(1)
}

// Released implements zookeeper.Observer.
func (o *Observer) Released(held time.Duration) {
	o.released.Inc()
	o.hold.Observe(held.Seconds())
	o.held.Set(0)
}

// Lost implements zookeeper.Observer. A lost lock isn't a release; it's
// counted as a session_lost failure.
func (o *Observer) Lost(time.Duration) {
	o.failures.WithLabelValues("session_lost").Inc()
	o.held.Set(0)
}

// Failed implements zookeeper.Observer.
func (o *Observer) Failed(err error) {
	o.failures.WithLabelValues(Reason(err)).Inc()
	o.held.Set(0)
}

// Reason classifies a lock error for the failures counter.
func Reason(err error) string {
	var cerr *zookeeper.ConnectionError
	var lerr *zookeeper.LockError

	switch {
	case errors.Is(err, zookeeper.ErrLockingTimedOut):
		return "timeout"
	case errors.Is(err, zookeeper.ErrSessionLost):
		return "session_lost"
	case errors.Is(err, zookeeper.ErrNotConnected), errors.As(err, &cerr):
		return "connection"
	case errors.As(err, &lerr):
		return "store"
	case errors.Is(err, zookeeper.ErrIllegalState):
		return "illegal_state"
	default:
		return "other"
	}
}
