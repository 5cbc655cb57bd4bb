package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds Prometheus metrics for pool monitoring
type Metrics struct {
	unitsTotal     *prometheus.CounterVec
	processingTime *prometheus.HistogramVec
	activeWorkers  prometheus.Gauge
	queueDepth     prometheus.GaugeFunc

	registerer prometheus.Registerer
}

// newMetrics creates the pool metrics. queueDepth is sampled on every scrape.
func newMetrics(namespace string, queueDepth func() float64) *Metrics {
	return &Metrics{
		unitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "units_total",
			Help:      "Total work units executed, by outcome",
		}, []string{"status"}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "unit_duration_seconds",
			Help:      "Time spent executing work units",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"status"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "active_workers",
			Help:      "Workers started and not yet joined",
		}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Work units waiting in the queue",
		}, queueDepth),
	}
}

// register registers every collector with reg. A counter, histogram or gauge
// already registered under the same descriptor is reused, so pools run one
// after another in a namespace share their series. The queue depth gauge is
// bound to this pool's queue and is removed again by releaseQueueDepth.
func (m *Metrics) register(reg prometheus.Registerer) error {
	m.registerer = reg

	var err error
	if m.unitsTotal, err = registerOrReuse(reg, m.unitsTotal); err != nil {
		return err
	}
	if m.processingTime, err = registerOrReuse(reg, m.processingTime); err != nil {
		return err
	}
	if m.activeWorkers, err = registerOrReuse(reg, m.activeWorkers); err != nil {
		return err
	}
	if err := reg.Register(m.queueDepth); err != nil {
		return fmt.Errorf("failed to register queue depth metric: %w", err)
	}
	return nil
}

// releaseQueueDepth unregisters the queue depth gauge once the queue is drained
func (m *Metrics) releaseQueueDepth() {
	if m.registerer != nil {
		m.registerer.Unregister(m.queueDepth)
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			if existing, ok := alreadyRegErr.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register pool metric: %w", err)
	}
	return c, nil
}

// observeUnit records one executed unit
func (m *Metrics) observeUnit(duration time.Duration, failed bool) {
	status := statusSuccess
	if failed {
		status = statusError
	}
	m.unitsTotal.WithLabelValues(status).Inc()
	m.processingTime.WithLabelValues(status).Observe(duration.Seconds())
}
