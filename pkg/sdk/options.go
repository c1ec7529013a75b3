package guardscan

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Engine.
type Option interface {
	apply(*engineConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*engineConfig)

func (f optionFunc) apply(c *engineConfig) { f(c) }

type engineConfig struct {
	vision  VisionClassifier
	text    TextClassifier
	fetcher Fetcher

	cacheCapacity int
	cacheTTL      time.Duration

	redisAddrs    []string
	redisPassword string
	redisTTL      time.Duration

	blockedDomains []string
	skipSeed       bool
	keywords       []KeywordTables

	maxFetchBytes int64
	fetchTimeout  time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithVisionClassifier sets the image classifier. Without one, image scans
// return score 0 with uncertainty 1.
func WithVisionClassifier(v VisionClassifier) Option {
	return optionFunc(func(c *engineConfig) {
		c.vision = v
	})
}

// WithTextClassifier sets the text classifier. Without one, text scans rely on keywords.
func WithTextClassifier(t TextClassifier) Option {
	return optionFunc(func(c *engineConfig) {
		c.text = t
	})
}

// WithFetcher replaces the built-in HTTP fetcher used by ScanURL.
func WithFetcher(f Fetcher) Option {
	return optionFunc(func(c *engineConfig) {
		c.fetcher = f
	})
}

// WithCache sets the in-process verdict cache capacity and TTL.
// Defaults: 5000 entries, 1 hour.
func WithCache(capacity int, ttl time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.cacheCapacity = capacity
		c.cacheTTL = ttl
	})
}

// WithRedis shares verdicts through a Redis or Valkey instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *engineConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
	})
}

// WithBlockedDomains adds domains to the built-in blocklist.
func WithBlockedDomains(domains ...string) Option {
	return optionFunc(func(c *engineConfig) {
		c.blockedDomains = append(c.blockedDomains, domains...)
	})
}

// WithKeywords layers keyword tables over the built-in ones. Later tables win on duplicates.
func WithKeywords(t KeywordTables) Option {
	return optionFunc(func(c *engineConfig) {
		c.keywords = append(c.keywords, t)
	})
}

// WithoutSeedData drops the built-in blocklist and keyword tables, leaving
// only what WithBlockedDomains and WithKeywords supply.
func WithoutSeedData() Option {
	return optionFunc(func(c *engineConfig) {
		c.skipSeed = true
	})
}

// WithFetchLimits sets the byte budget and timeout for ScanURL fetches.
// Defaults: 10 MiB, 10 seconds.
func WithFetchLimits(maxBytes int64, timeout time.Duration) Option {
	return optionFunc(func(c *engineConfig) {
		c.maxFetchBytes = maxBytes
		c.fetchTimeout = timeout
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *engineConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (scan counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *engineConfig) {
		c.metricsReg = reg
	})
}
