package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scan pipeline Prometheus metrics.
var (
	ScanRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_requests_total",
			Help:      "Total number of scans by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: url/text/image; outcome: safe/unsafe/blocked/failed/cached/shared
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Scan duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Verdict cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // tier: local/shared; result: hit/miss/expired
	)

	ResultCacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_evictions_total",
			Help:      "Verdicts evicted from the local cache by LRU order",
		},
	)

	BlocklistHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocklist_hits_total",
			Help:      "URL scans short-circuited by the domain blocklist",
		},
	)

	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Content fetches by outcome",
		},
		[]string{"outcome"}, // ok/timeout/oversize/status/failed
	)

	FetchBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_bytes",
			Help:      "Size of fetched bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Classifier calls by modality and status",
		},
		[]string{"modality", "status"},
	)

	ClassifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Classifier call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"modality"},
	)

	ClassifierQuotaRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "classifier_quota_remaining",
			Help:      "Remaining classifier calls in the current period",
		},
		[]string{"modality", "period"},
	)
)

var scanMetricsRegistered bool

// RegisterScanMetrics registers Prometheus scan metrics. Must be called once from main.
func RegisterScanMetrics() {
	if scanMetricsRegistered {
		return
	}
	prometheus.MustRegister(ScanRequestsTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(ResultCacheTotal)
	prometheus.MustRegister(ResultCacheEvictionsTotal)
	prometheus.MustRegister(BlocklistHitsTotal)
	prometheus.MustRegister(FetchTotal)
	prometheus.MustRegister(FetchBytes)
	prometheus.MustRegister(ClassifierRequestsTotal)
	prometheus.MustRegister(ClassifierDuration)
	prometheus.MustRegister(ClassifierQuotaRemaining)
	scanMetricsRegistered = true
}
