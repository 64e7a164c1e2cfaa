package db

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	ops            *prometheus.CounterVec
	internalErrors *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meowstore_operations_total",
			Help: "Store operations by result.",
		}, []string{"op", "result"}),
		internalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meowstore_internal_errors_total",
			Help: "Internal failures reported to the error channel, by subsystem.",
		}, []string{"subsystem"}),
	}
}

func resultLabel(err error) string {
	var ae *AuthError
	var be *BadInputError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ae):
		return "auth_" + ae.Reason.String()
	case errors.As(err, &be):
		return "bad_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "internal"
	}
}

func (m *metrics) observe(op Op, err error) {
	m.ops.WithLabelValues(string(op), resultLabel(err)).Inc()
}
