package simulation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("go-flock-step/simulation")

var (
	// stepsTotal counts finished steps by result (committed or aborted)
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flock_steps_total",
		Help: "Total simulation steps by result",
	}, []string{"result"})

	// stepDuration tracks the wall time of one parallel update plus commit
	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flock_step_duration_seconds",
		Help:    "Step duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
	})

	agentsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flock_agents",
		Help: "Number of agents in the last initialized simulation",
	})

	committedStep = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flock_committed_step",
		Help: "Index of the last committed step",
	})
)

const (
	resultCommitted = "committed"
	resultAborted   = "aborted"
)
