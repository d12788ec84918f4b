package login

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsOptions configures the login metrics.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// Metrics exposes Prometheus collectors for login attempts. A nil *Metrics
// records nothing.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Distance *prometheus.HistogramVec
}

// NewMetrics constructs the collectors and registers them, reusing
// collectors that are already registered under the same name.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "staff_portal"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attempts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "login",
		Name:      "attempts_total",
		Help:      "Login attempts partitioned by method and outcome reason.",
	}, []string{"method", "reason"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "login",
		Name:      "duration_seconds",
		Help:      "Time from trigger to terminal outcome, partitioned by method.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"}))
	if err != nil {
		return nil, err
	}

	distance, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "face",
		Name:      "match_distance",
		Help:      "Mean descriptor distance of the decisive candidate, partitioned by outcome reason.",
		Buckets:   prometheus.LinearBuckets(0.05, 0.05, 20),
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{Attempts: attempts, Duration: duration, Distance: distance}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
		return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
	}
	return c, fmt.Errorf("register collector: %w", err)
}

func (m *Metrics) observe(res Result, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(res.Method, string(res.Reason)).Inc()
	m.Duration.WithLabelValues(res.Method).Observe(elapsed.Seconds())
	if res.Method == MethodFace && res.IdentityKey != "" {
		m.Distance.WithLabelValues(string(res.Reason)).Observe(res.Distance)
	}
}
