package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nx-ipc/result"
)

// Metrics counts commands by service and result and records their latency.
// The collectors are registered with reg; pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func Metrics(reg prometheus.Registerer) Middleware {
	factory := promauto.With(reg)
	commands := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nxipc_commands_total",
			Help: "Total number of dispatched IPC commands",
		},
		[]string{"service", "result"},
	)
	duration := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nxipc_command_duration_seconds",
			Help:    "IPC command duration in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"service"},
	)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			duration.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
			commands.WithLabelValues(req.Service, result.FromError(err).String()).Inc()
			return err
		}
	}
}
