package shell

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels.
const (
	outcomeOK         = "ok"
	outcomeTimeout    = "timeout"
	outcomeTerminated = "terminated"
	outcomeAuth       = "auth_expired"
	outcomeNotFound   = "not_installed"
	outcomeLocked     = "locked"
	outcomeCancelled  = "cancelled"
	outcomeError      = "error"
)

// Metrics records driver activity. A nil *Metrics records nothing.
type Metrics struct {
	commands *prometheus.CounterVec
	duration prometheus.Histogram
	starts   *prometheus.CounterVec
	retries  prometheus.Counter
	up       prometheus.Gauge
}

// NewMetrics creates driver metrics and registers them with reg.
// A nil reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultshell",
			Name:      "commands_total",
			Help:      "Commands dispatched to the vault CLI, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vaultshell",
			Name:      "command_duration_seconds",
			Help:      "Time from writing a command to its prompt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultshell",
			Name:      "session_starts_total",
			Help:      "Vault CLI session start attempts, by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultshell",
			Name:      "command_retries_total",
			Help:      "Command attempts repeated by the retry executor.",
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultshell",
			Name:      "session_up",
			Help:      "1 while a vault CLI session is ready.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.commands, m.duration, m.starts, m.retries, m.up)
	}
	return m
}

// ObserveRetry counts one repeated attempt.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observeCommand(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeStart(err error) {
	if m == nil {
		return
	}
	m.starts.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.up.Set(1)
	}
}

func (m *Metrics) sessionDown() {
	if m == nil {
		return
	}
	m.up.Set(0)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrCommandTimeout), errors.Is(err, ErrStartupTimeout):
		return outcomeTimeout
	case errors.Is(err, ErrProcessTerminated):
		return outcomeTerminated
	case errors.Is(err, ErrAuthenticationExpired):
		return outcomeAuth
	case errors.Is(err, ErrNotInstalled):
		return outcomeNotFound
	case errors.Is(err, ErrSessionLocked):
		return outcomeLocked
	case isContextErr(err):
		return outcomeCancelled
	default:
		return outcomeError
	}
}
