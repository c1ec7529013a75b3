package guardscan

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// sdkMetrics holds prometheus metrics registered for the SDK.
type sdkMetrics struct {
	scans    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guardscan",
			Subsystem: "sdk",
			Name:      "scans_total",
			Help:      "Total SDK scans by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "guardscan",
			Subsystem: "sdk",
			Name:      "scan_duration_seconds",
			Help:      "SDK scan duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if err := registerOrReuse(reg, &m.scans); err != nil {
		return nil, err
	}
	if err := registerOrReuse(reg, &m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers a collector or reuses an existing one.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				return fmt.Errorf("guardscan: metric already registered with incompatible type: %T", are.ExistingCollector)
			}
			*c = existing
			return nil
		}
		return fmt.Errorf("guardscan: register metric: %w", err)
	}
	return nil
}

// observer provides logging and metrics for SDK scans.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	var m *sdkMetrics
	if reg != nil {
		var err error
		m, err = newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
	}
	return &observer{logger: logger, metrics: m}, nil
}

func (o *observer) observe(kind string, start time.Time, r Result) {
	if o == nil {
		return
	}
	dur := time.Since(start)
	outcome := outcomeOf(r)

	if o.metrics != nil {
		o.metrics.scans.WithLabelValues(kind, outcome).Inc()
		o.metrics.duration.WithLabelValues(kind).Observe(dur.Seconds())
	}

	if o.logger != nil {
		if outcome == "failed" {
			o.logger.Warn("scan failed open",
				"kind", kind,
				"duration", dur,
				"flags", r.Flags,
				"error", r.Details["error"],
			)
		} else {
			o.logger.Debug("scan completed",
				"kind", kind,
				"duration", dur,
				"outcome", outcome,
				"score", r.Score,
			)
		}
	}
}

func outcomeOf(r Result) string {
	switch {
	case r.HasFlag(FlagDomainBlocklist):
		return "blocked"
	case r.HasFlag(FlagError), r.HasFlag(FlagImageDecodeError):
		return "failed"
	case !r.IsSafe:
		return "unsafe"
	default:
		return "safe"
	}
}
