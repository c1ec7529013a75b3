package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/blocklist"
	"github.com/kailas-cloud/guardscan/internal/cache"
	"github.com/kailas-cloud/guardscan/internal/config"
	"github.com/kailas-cloud/guardscan/internal/db"
	dbRedis "github.com/kailas-cloud/guardscan/internal/db/redis"
	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/keywords"
	logpkg "github.com/kailas-cloud/guardscan/internal/logger"
	"github.com/kailas-cloud/guardscan/internal/metrics"
	quotarepo "github.com/kailas-cloud/guardscan/internal/repository/quota"
	"github.com/kailas-cloud/guardscan/internal/repository/verdictstore"
	chiTransport "github.com/kailas-cloud/guardscan/internal/transport/chi"
	"github.com/kailas-cloud/guardscan/internal/transport/fetcher"
	openaiText "github.com/kailas-cloud/guardscan/internal/transport/openai"
	"github.com/kailas-cloud/guardscan/internal/transport/vision"
	classifyuc "github.com/kailas-cloud/guardscan/internal/usecase/classify"
	healthuc "github.com/kailas-cloud/guardscan/internal/usecase/health"
	scanuc "github.com/kailas-cloud/guardscan/internal/usecase/scan"
	usageuc "github.com/kailas-cloud/guardscan/internal/usecase/usage"
	"github.com/kailas-cloud/guardscan/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting guardscan API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("shared_cache", cfg.SharedCache.Enabled),
	)

	// Register scan metrics explicitly (no init())
	metrics.RegisterScanMetrics()

	ctx := context.Background()

	// Optional shared store
	var store db.Store
	if cfg.SharedCache.Enabled {
		store = connectStore(ctx, cfg.SharedCache, logger)
		defer store.Close()
	}

	bl := buildBlocklist(cfg.Blocklist, logger)
	kw := buildKeywords(cfg.Keywords, logger)

	resultCache := cache.New(cfg.Cache.Capacity, time.Duration(cfg.Cache.TTLSec)*time.Second).
		WithMetrics(
			metrics.ResultCacheTotal.MustCurryWith(prometheus.Labels{"tier": "local"}),
			metrics.ResultCacheEvictionsTotal,
		)

	contentFetcher := fetcher.New(fetcher.Config{
		UserAgent:  cfg.Fetch.UserAgent,
		RatePerSec: cfg.Fetch.RatePerSec,
		Burst:      cfg.Fetch.Burst,
		Logger:     logger,
	})

	scanSvc := scanuc.New(bl, kw, contentFetcher, resultCache, metrics.NewEngine(cfg.Metrics.WindowSize), logger).
		WithPolicy(scanuc.Policy{
			CacheBlocked:   *cfg.Cache.CacheBlocked,
			CacheFailures:  *cfg.Cache.CacheFailures,
			MaxFetchBytes:  cfg.Fetch.MaxBytes,
			FetchTimeout:   time.Duration(cfg.Fetch.TimeoutSec) * time.Second,
			DetectLanguage: true,
		})

	healthSvc := healthuc.New(pinger(store))

	if store != nil {
		scanSvc.WithSharedStore(verdictstore.New(
			store, cfg.SharedCache.KeyPrefix, time.Duration(cfg.SharedCache.TTLSec)*time.Second,
			metrics.ResultCacheTotal, logger,
		))
	}

	usageSvc := usageuc.New()

	// Classifier chain: adapter -> Instrumented (quota + metrics)
	if text := buildTextClassifier(ctx, cfg, store, usageSvc, logger); text != nil {
		scanSvc.WithText(text)
		healthSvc.WithChecker("text_classifier", text)
	}
	if vis := buildVisionClassifier(ctx, cfg, store, usageSvc, logger); vis != nil {
		scanSvc.WithVision(vis)
		healthSvc.WithChecker("vision_classifier", vis)
	}

	server := chiTransport.NewServer(scanSvc, healthSvc, logger).
		WithMaxUploadBytes(cfg.HTTP.MaxUploadBytes).
		WithUsage(usageSvc)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func connectStore(ctx context.Context, sc config.SharedCacheConfig, logger *zap.Logger) db.Store {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    sc.Addrs,
		Username: sc.Username,
		Password: sc.Password,
		DB:       sc.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create shared cache store", zap.Error(err))
	}
	if err := store.WaitForReady(ctx, time.Duration(sc.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Shared cache not ready", zap.Error(err))
	}
	logger.Info("Connected to shared cache", zap.Strings("addrs", sc.Addrs))
	return store
}

// pinger returns a nil interface (not a typed nil) when no store is configured.
func pinger(store db.Store) healthuc.DBPinger {
	if store == nil {
		return nil
	}
	return store
}

func buildBlocklist(bc config.BlocklistConfig, logger *zap.Logger) *blocklist.Blocklist {
	domains, err := blocklist.Seed()
	if err != nil {
		logger.Fatal("Failed to load blocklist seed", zap.Error(err))
	}
	for _, path := range bc.ExtraFiles {
		extra, err := blocklist.LoadFile(path)
		if err != nil {
			logger.Fatal("Failed to load blocklist", zap.String("path", path), zap.Error(err))
		}
		domains = append(domains, extra...)
	}

	bl, err := blocklist.New(bc.ExpectedItems, bc.FPRate, domains)
	if err != nil {
		logger.Fatal("Failed to build blocklist", zap.Error(err))
	}
	bl.WithRegistrableMatch(*bc.MatchRegistrable)

	st := bl.Stats()
	logger.Info("Blocklist loaded",
		zap.Int("domains", st.Domains),
		zap.Uint64("bits", st.Bits),
		zap.Int("hash_count", st.HashCount),
		zap.Float64("estimated_fp_rate", st.EstimatedRate),
	)
	return bl
}

func buildKeywords(kc config.KeywordsConfig, logger *zap.Logger) *keywords.Database {
	seed, err := keywords.Seed()
	if err != nil {
		logger.Fatal("Failed to parse keyword seed", zap.Error(err))
	}
	sets := []keywords.Tables{seed}
	for _, path := range kc.ExtraFiles {
		t, err := keywords.LoadFile(path)
		if err != nil {
			logger.Fatal("Failed to load keywords", zap.String("path", path), zap.Error(err))
		}
		sets = append(sets, t)
	}

	kw := keywords.New(sets...)
	logger.Info("Keywords loaded", zap.Int("keywords", kw.Len()), zap.Strings("languages", kw.Languages()))
	return kw
}

// buildQuota returns nil when no limit is configured. A tracker is also
// attached to the usage report under name.
func buildQuota(
	ctx context.Context, name string, qc config.QuotaConfig, store db.Store, keyPrefix string,
	usageSvc *usageuc.Service, logger *zap.Logger,
) classifyuc.QuotaChecker {
	if qc.DailyLimit <= 0 && qc.MonthlyLimit <= 0 {
		return nil
	}
	action := classifyuc.QuotaActionWarn
	if qc.Action == string(classifyuc.QuotaActionReject) {
		action = classifyuc.QuotaActionReject
	}
	q := classifyuc.NewQuotaTracker(name, qc.DailyLimit, qc.MonthlyLimit, action, logger)
	if store != nil {
		q.WithStore(ctx, quotarepo.New(store, 48*time.Hour, 62*24*time.Hour), keyPrefix)
	}
	usageSvc.WithClassifier(name, q)
	return q
}

func buildTextClassifier(
	ctx context.Context, cfg config.Config, store db.Store, usageSvc *usageuc.Service, logger *zap.Logger,
) *classifyuc.InstrumentedText {
	tc := cfg.Classifiers.Text
	if tc.Provider != config.ProviderOpenAI {
		logger.Warn("Text classifier disabled, text scans use keywords only")
		return nil
	}

	var base domain.TextClassifier = openaiText.NewModerator(&openaiText.Config{
		APIKey:        tc.APIKey,
		BaseURL:       tc.BaseURL,
		Model:         tc.Model,
		MaxInputRunes: tc.MaxInputRunes,
		Timeout:       time.Duration(tc.TimeoutSec) * time.Second,
		Logger:        logger,
	})
	quota := buildQuota(ctx, "text_classifier", tc.Quota, store, cfg.SharedCache.KeyPrefix, usageSvc, logger)
	logger.Info("Text classifier enabled", zap.String("provider", tc.Provider), zap.String("model", tc.Model))
	return classifyuc.NewInstrumentedText(base, quota, logger)
}

func buildVisionClassifier(
	ctx context.Context, cfg config.Config, store db.Store, usageSvc *usageuc.Service, logger *zap.Logger,
) *classifyuc.InstrumentedVision {
	vc := cfg.Classifiers.Vision
	if vc.URL == "" {
		logger.Warn("Vision classifier disabled, image scans are fail-open")
		return nil
	}

	var base domain.VisionClassifier = vision.New(vision.Config{
		URL:     vc.URL,
		Timeout: time.Duration(vc.TimeoutSec) * time.Second,
		Logger:  logger,
	})
	quota := buildQuota(ctx, "vision_classifier", vc.Quota, store, cfg.SharedCache.KeyPrefix, usageSvc, logger)
	logger.Info("Vision classifier enabled", zap.String("url", vc.URL))
	return classifyuc.NewInstrumentedVision(base, quota, logger)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
