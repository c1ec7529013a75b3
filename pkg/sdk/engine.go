package guardscan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/blocklist"
	"github.com/kailas-cloud/guardscan/internal/cache"
	"github.com/kailas-cloud/guardscan/internal/db"
	dbRedis "github.com/kailas-cloud/guardscan/internal/db/redis"
	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	"github.com/kailas-cloud/guardscan/internal/keywords"
	"github.com/kailas-cloud/guardscan/internal/metrics"
	"github.com/kailas-cloud/guardscan/internal/repository/verdictstore"
	"github.com/kailas-cloud/guardscan/internal/transport/fetcher"
	healthuc "github.com/kailas-cloud/guardscan/internal/usecase/health"
	scanuc "github.com/kailas-cloud/guardscan/internal/usecase/scan"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultSharedTTL        = time.Hour
	defaultExpectedDomains  = 100_000
	defaultFPRate           = 0.001
)

// scanUseCase is the internal scan pipeline, replaceable in tests.
type scanUseCase interface {
	ScanURL(ctx context.Context, rawURL string) verdict.Result
	ScanText(ctx context.Context, text string) verdict.Result
	ScanImage(ctx context.Context, data []byte) verdict.Result
	Diagnostics() scanuc.Diagnostics
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Engine is the guardscan SDK entry point. It is safe for concurrent use.
type Engine struct {
	store     db.Store
	scanSvc   scanUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New builds an Engine. The context bounds the Redis readiness check when WithRedis is set.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		cacheCapacity: cache.DefaultCapacity,
		cacheTTL:      cache.DefaultTTL,
		redisTTL:      defaultSharedTTL,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.redisAddrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("guardscan: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("guardscan: redis not ready: %w", err)
		}
		store = s
	}

	e, err := wireEngine(store, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return e, nil
}

func wireEngine(store db.Store, cfg *engineConfig, obs *observer) (*Engine, error) {
	logger := zap.NewNop()

	var domains []string
	if !cfg.skipSeed {
		seed, err := blocklist.Seed()
		if err != nil {
			return nil, fmt.Errorf("guardscan: %w", err)
		}
		domains = seed
	}
	domains = append(domains, cfg.blockedDomains...)
	bl, err := blocklist.New(defaultExpectedDomains, defaultFPRate, domains)
	if err != nil {
		return nil, fmt.Errorf("guardscan: build blocklist: %w", err)
	}
	bl.WithRegistrableMatch(true)

	var sets []keywords.Tables
	if !cfg.skipSeed {
		seed, err := keywords.Seed()
		if err != nil {
			return nil, fmt.Errorf("guardscan: keyword seed: %w", err)
		}
		sets = append(sets, seed)
	}
	for _, t := range cfg.keywords {
		sets = append(sets, keywords.Tables(t))
	}
	kw := keywords.New(sets...)

	var f domain.ContentFetcher
	if cfg.fetcher != nil {
		f = cfg.fetcher
	} else {
		f = fetcher.New(fetcher.Config{Logger: logger})
	}

	svc := scanuc.New(bl, kw, f, cache.New(cfg.cacheCapacity, cfg.cacheTTL),
		metrics.NewEngine(metrics.DefaultWindowSize), logger)
	policy := scanuc.DefaultPolicy()
	policy.MaxFetchBytes = cfg.maxFetchBytes
	policy.FetchTimeout = cfg.fetchTimeout
	svc.WithPolicy(policy)

	var pinger healthuc.DBPinger
	if store != nil {
		svc.WithSharedStore(verdictstore.New(store, verdictstore.DefaultKeyPrefix, cfg.redisTTL, nil, logger))
		pinger = store
	}
	health := healthuc.New(pinger)

	if cfg.text != nil {
		svc.WithText(cfg.text)
		if hc, ok := cfg.text.(healthuc.Checker); ok {
			health.WithChecker("text_classifier", hc)
		}
	}
	if cfg.vision != nil {
		svc.WithVision(cfg.vision)
		if hc, ok := cfg.vision.(healthuc.Checker); ok {
			health.WithChecker("vision_classifier", hc)
		}
	}

	return &Engine{
		store:     store,
		scanSvc:   svc,
		healthSvc: health,
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (e *Engine) Close() {
	if e.store != nil {
		e.store.Close()
	}
}

// ScanURL scans the content behind rawURL. Blocked domains are never fetched.
func (e *Engine) ScanURL(ctx context.Context, rawURL string) Result {
	start := time.Now()
	r := toResult(e.scanSvc.ScanURL(ctx, rawURL))
	e.obs.observe("url", start, r)
	return r
}

// ScanText scans a text payload.
func (e *Engine) ScanText(ctx context.Context, text string) Result {
	start := time.Now()
	r := toResult(e.scanSvc.ScanText(ctx, text))
	e.obs.observe("text", start, r)
	return r
}

// ScanImage scans raw image bytes (JPEG, PNG or GIF).
func (e *Engine) ScanImage(ctx context.Context, data []byte) Result {
	start := time.Now()
	r := toResult(e.scanSvc.ScanImage(ctx, data))
	e.obs.observe("image", start, r)
	return r
}

// Stats returns latency percentiles, counters and cache state.
func (e *Engine) Stats() Stats {
	d := e.scanSvc.Diagnostics()
	return Stats{
		Requests:       d.Performance.Requests,
		Errors:         d.Performance.Errors,
		ErrorRate:      d.Performance.ErrorRate,
		P50LatencyMs:   d.Performance.P50LatencyMs,
		P95LatencyMs:   d.Performance.P95LatencyMs,
		P99LatencyMs:   d.Performance.P99LatencyMs,
		ThroughputRPS:  d.Performance.ThroughputRPS,
		CacheSize:      d.Cache.Size,
		CacheHits:      d.Cache.Hits,
		CacheMisses:    d.Cache.Misses,
		CacheEvictions: d.Cache.Evictions,
		BlockedDomains: d.Blocklist.Domains,
		Keywords:       d.Keywords.Keywords,
		Languages:      d.Keywords.Languages,
	}
}

// Health checks Redis and any classifier that implements HealthCheck(ctx) error.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	report := e.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

func toResult(v verdict.Result) Result {
	flags := v.Flags()
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return Result{
		IsSafe:      v.IsSafe(),
		Score:       v.Score(),
		Uncertainty: v.Uncertainty(),
		Flags:       out,
		Details:     v.Details(),
		Latency:     v.Latency(),
	}
}
