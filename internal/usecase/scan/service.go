// Package scan orchestrates URL, text and image scans: cache lookup,
// blocklist short-circuit, bounded fetch, classification, fusion, cache
// write and latency recording.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/guardscan/internal/content"
	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/domain/modality"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	"github.com/kailas-cloud/guardscan/internal/keywords"
	"github.com/kailas-cloud/guardscan/internal/metrics"
	"github.com/kailas-cloud/guardscan/internal/usecase/ensemble"
)

// Scan kinds, used as metric labels.
const (
	KindURL   = "url"
	KindText  = "text"
	KindImage = "image"
)

const sharedWriteTimeout = 2 * time.Second

// Policy tunes caching and fetching.
type Policy struct {
	CacheBlocked   bool // cache blocklist short-circuit verdicts
	CacheFailures  bool // cache fail-open verdicts
	MaxFetchBytes  int64
	FetchTimeout   time.Duration
	DetectLanguage bool
}

// DefaultPolicy returns the engine defaults.
func DefaultPolicy() Policy {
	return Policy{
		CacheBlocked:   true,
		CacheFailures:  true,
		MaxFetchBytes:  10 << 20,
		FetchTimeout:   10 * time.Second,
		DetectLanguage: true,
	}
}

// Service is the scan pipeline. It is safe for concurrent use.
type Service struct {
	blocklist domainBlocklist
	keywords  keywordAnalyzer
	fetcher   domain.ContentFetcher
	cache     resultCache
	recorder  recorder
	decoder   imageDecoder
	shared    sharedStore
	vision    domain.VisionClassifier
	text      domain.TextClassifier
	policy    Policy
	group     singleflight.Group
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a scan service. Classifiers are attached with WithVision and WithText;
// a scan without a classifier for a modality simply omits that modality.
func New(
	bl domainBlocklist, kw keywordAnalyzer, fetcher domain.ContentFetcher,
	c resultCache, rec recorder, logger *zap.Logger,
) *Service {
	return &Service{
		blocklist: bl,
		keywords:  kw,
		fetcher:   fetcher,
		cache:     c,
		recorder:  rec,
		decoder:   content.NewImageDecoder(0),
		policy:    DefaultPolicy(),
		now:       time.Now,
		logger:    logger,
	}
}

// WithVision attaches the vision classifier.
func (s *Service) WithVision(v domain.VisionClassifier) *Service {
	s.vision = v
	return s
}

// WithText attaches the text classifier.
func (s *Service) WithText(t domain.TextClassifier) *Service {
	s.text = t
	return s
}

// WithSharedStore attaches a cross-instance verdict cache.
func (s *Service) WithSharedStore(st sharedStore) *Service {
	s.shared = st
	return s
}

// WithPolicy overrides the caching and fetch policy. Zero fetch limits keep the defaults.
func (s *Service) WithPolicy(p Policy) *Service {
	def := DefaultPolicy()
	if p.MaxFetchBytes <= 0 {
		p.MaxFetchBytes = def.MaxFetchBytes
	}
	if p.FetchTimeout <= 0 {
		p.FetchTimeout = def.FetchTimeout
	}
	s.policy = p
	return s
}

// WithDecoder overrides the image decoder.
func (s *Service) WithDecoder(d imageDecoder) *Service {
	s.decoder = d
	return s
}

// WithClock overrides the time source used for latency.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ScanURL scans the content behind rawURL. It never fails: errors become
// fail-open verdicts flagged "error".
func (s *Service) ScanURL(ctx context.Context, rawURL string) verdict.Result {
	start := s.now()
	key := domain.URLFingerprint(rawURL)
	return s.cached(ctx, KindURL, key, start, func() verdict.Result {
		return s.scanURL(ctx, rawURL, key, start)
	})
}

// ScanText scans a text payload.
func (s *Service) ScanText(ctx context.Context, text string) verdict.Result {
	start := s.now()
	key := domain.TextFingerprint(text)
	return s.cached(ctx, KindText, key, start, func() verdict.Result {
		p := s.textParams(ctx, text)
		p.Latency = s.since(start)
		return s.finish(ctx, KindText, key, verdict.New(p), start)
	})
}

// ScanImage scans raw image bytes. Undecodable input yields a fail-open
// verdict flagged "image_decode_error".
func (s *Service) ScanImage(ctx context.Context, data []byte) verdict.Result {
	start := s.now()
	key := domain.ImageFingerprint(data)
	return s.cached(ctx, KindImage, key, start, func() verdict.Result {
		p := s.imageParams(ctx, data)
		p.Latency = s.since(start)
		return s.finish(ctx, KindImage, key, verdict.New(p), start)
	})
}

// cached serves key from the local cache, then the shared store, and
// otherwise runs scan once per key across concurrent callers.
func (s *Service) cached(
	ctx context.Context, kind, key string, start time.Time, scan func() verdict.Result,
) verdict.Result {
	if r, ok := s.cache.Get(key); ok {
		s.hit(kind, r, start)
		return r
	}
	if s.shared != nil {
		if r, ok := s.shared.Get(ctx, key); ok {
			s.cache.Put(key, r)
			s.hit(kind, r, start)
			return r
		}
	}

	// Do reports shared to the leader as well, so joined callers are told
	// apart by whether scan ran on their goroutine.
	leader := false
	v, _, _ := s.group.Do(key, func() (any, error) {
		leader = true
		return scan(), nil
	})
	r := v.(verdict.Result)
	if !leader {
		s.joined(kind, key, r, start)
	}
	return r
}

func (s *Service) scanURL(ctx context.Context, rawURL, key string, start time.Time) verdict.Result {
	u, err := domain.ParseScanURL(rawURL)
	if err != nil {
		r := verdict.FailOpen(verdict.FlagError, s.details(map[string]any{"error": err.Error()}), s.since(start))
		return s.finish(ctx, KindURL, key, r, start)
	}

	if matched, blocked := s.blocklist.Lookup(u.Hostname()); blocked {
		metrics.BlocklistHitsTotal.Inc()
		s.logger.Info("Blocked domain", zap.String("host", u.Hostname()), zap.String("blocked_by", matched))
		r := verdict.Blocked(s.details(map[string]any{
			"url":        u.String(),
			"domain":     u.Hostname(),
			"blocked_by": matched,
		}), s.since(start))
		return s.finish(ctx, KindURL, key, r, start)
	}

	contentType, body, err := s.fetcher.Fetch(ctx, u.String(), s.policy.MaxFetchBytes, s.policy.FetchTimeout)
	if err != nil {
		s.logger.Warn("Fetch failed", zap.String("url", u.String()), zap.Error(err))
		details := map[string]any{
			"url":    u.String(),
			"domain": u.Hostname(),
			"error":  err.Error(),
			"fetch":  fetchOutcome(err),
		}
		var statusErr *domain.FetchStatusError
		if errors.As(err, &statusErr) {
			details["status"] = statusErr.StatusCode
		}
		r := verdict.FailOpen(verdict.FlagError, s.details(details), s.since(start))
		return s.finish(ctx, KindURL, key, r, start)
	}

	kind := content.Sniff(contentType, body)
	var p verdict.Params
	switch kind {
	case content.KindImage:
		p = s.imageParams(ctx, body)
	default:
		text, err := content.DecodeText(contentType, body)
		if err != nil {
			r := verdict.FailOpen(verdict.FlagError, s.details(map[string]any{"error": err.Error()}), s.since(start))
			return s.finish(ctx, KindURL, key, r, start)
		}
		p = s.textParams(ctx, text)
	}

	p.Details["url"] = u.String()
	p.Details["domain"] = u.Hostname()
	p.Details["content_type"] = contentType
	p.Details["content_kind"] = kind.String()
	p.Details["bytes"] = len(body)
	p.Latency = s.since(start)
	return s.finish(ctx, KindURL, key, verdict.New(p), start)
}

func (s *Service) textParams(ctx context.Context, text string) verdict.Params {
	a := s.keywords.Analyze(text)
	details := s.details(map[string]any{
		"keywords":       nonNil(a.Keywords),
		"categories":     nonNil(a.Categories),
		"keyword_weight": a.MaxWeight,
	})

	var scores ensemble.Scores
	if s.text != nil && strings.TrimSpace(text) != "" {
		score, err := s.text.Predict(ctx, text)
		if err == nil {
			err = checkScore(score)
		}
		if err != nil {
			s.logger.Warn("Text classifier failed, modality dropped", zap.Error(err))
			details["text_error"] = err.Error()
		} else {
			scores.Set(modality.Text, score)
			details["model_score"] = score
		}
	}
	scores.Set(modality.Metadata, a.MaxWeight)

	if s.policy.DetectLanguage {
		if lang := content.DetectLanguage(text); lang != "" {
			details["language"] = lang
		}
	}

	final, uncertainty := ensemble.Vote(scores)
	details["scores"] = scores.Map()
	safe := final < verdict.UnsafeThreshold

	var flags []verdict.Flag
	if !safe {
		flags = append(flags, verdict.FlagToxicText)
		for _, c := range a.Categories {
			if c == keywords.CategoryNSFW {
				flags = append(flags, verdict.FlagNSFWText)
				break
			}
		}
	}
	if len(a.Keywords) > 0 {
		flags = append(flags, verdict.FlagKeywordsDetected)
	}

	return verdict.Params{
		Safe:        safe,
		Score:       final,
		Uncertainty: uncertainty,
		Flags:       flags,
		Details:     details,
	}
}

func (s *Service) imageParams(ctx context.Context, data []byte) verdict.Params {
	info, err := s.decoder.Decode(data)
	if err != nil {
		s.logger.Warn("Image decode failed", zap.Int("bytes", len(data)), zap.Error(err))
		return verdict.Params{
			Safe:        true,
			Score:       0,
			Uncertainty: 1,
			Flags:       []verdict.Flag{verdict.FlagImageDecodeError},
			Details:     s.details(map[string]any{"error": err.Error()}),
		}
	}

	details := s.details(map[string]any{
		"format": info.Format,
		"width":  info.Width,
		"height": info.Height,
	})
	if h := content.SimilarityHash(data); h != "" {
		details["tlsh"] = h
	}

	var scores ensemble.Scores
	if s.vision != nil {
		score, err := s.vision.Predict(ctx, data)
		if err == nil {
			err = checkScore(score)
		}
		if err != nil {
			s.logger.Warn("Vision classifier failed, modality dropped", zap.Error(err))
			details["vision_error"] = err.Error()
		} else {
			scores.Set(modality.Vision, score)
			details["vision_score"] = score
		}
	} else {
		details["vision_error"] = domain.ErrClassifierUnavailable.Error()
	}

	final, uncertainty := ensemble.Vote(scores)
	details["scores"] = scores.Map()
	safe := final < verdict.UnsafeThreshold

	var flags []verdict.Flag
	if !safe {
		flags = append(flags, verdict.FlagNSFWImage)
	}
	return verdict.Params{
		Safe:        safe,
		Score:       final,
		Uncertainty: uncertainty,
		Flags:       flags,
		Details:     details,
	}
}

// checkScore rejects classifier output outside [0,1], NaN included.
func checkScore(score float64) error {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return fmt.Errorf("score %v outside [0,1]: %w", score, domain.ErrClassifier)
	}
	return nil
}

// finish caches r per policy and records it.
func (s *Service) finish(ctx context.Context, kind, key string, r verdict.Result, start time.Time) verdict.Result {
	blocked := r.HasFlag(verdict.FlagDomainBlocklist)
	cacheable := (!blocked || s.policy.CacheBlocked) && (!r.Failed() || s.policy.CacheFailures)
	if cacheable {
		s.cache.Put(key, r)
		if s.shared != nil {
			wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedWriteTimeout)
			s.shared.Put(wctx, key, r)
			cancel()
		}
	}

	elapsed := s.since(start)
	s.recorder.LogRequest(ms(elapsed), r.Failed())
	metrics.ScanRequestsTotal.WithLabelValues(kind, outcome(r)).Inc()
	metrics.ScanDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	s.logger.Debug("Scan completed",
		zap.String("kind", kind),
		zap.Bool("safe", r.IsSafe()),
		zap.Float64("score", r.Score()),
		zap.Float64("uncertainty", r.Uncertainty()),
		zap.Any("flags", r.Flags()),
		zap.Bool("cached", cacheable),
		zap.Duration("duration", elapsed),
	)
	return r
}

func (s *Service) hit(kind string, r verdict.Result, start time.Time) {
	elapsed := s.since(start)
	s.recorder.LogRequest(ms(elapsed), false)
	metrics.ScanRequestsTotal.WithLabelValues(kind, "cached").Inc()
	metrics.ScanDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	s.logger.Debug("Scan served from cache", zap.String("kind", kind), zap.Bool("safe", r.IsSafe()))
}

// joined records a caller that received another caller's in-flight scan.
func (s *Service) joined(kind, key string, r verdict.Result, start time.Time) {
	elapsed := s.since(start)
	s.recorder.LogRequest(ms(elapsed), r.Failed())
	metrics.ScanRequestsTotal.WithLabelValues(kind, "shared").Inc()
	metrics.ScanDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	s.logger.Debug("Scan shared with concurrent caller", zap.String("kind", kind), zap.String("key", key))
}

// details returns a fresh details map carrying a scan id.
func (s *Service) details(m map[string]any) map[string]any {
	if m == nil {
		m = make(map[string]any, 1)
	}
	m["scan_id"] = uuid.NewString()
	return m
}

func (s *Service) since(start time.Time) time.Duration {
	return s.now().Sub(start)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func outcome(r verdict.Result) string {
	switch {
	case r.HasFlag(verdict.FlagDomainBlocklist):
		return "blocked"
	case r.Failed():
		return "failed"
	case !r.IsSafe():
		return "unsafe"
	default:
		return "safe"
	}
}

func fetchOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrFetchOversize):
		return "oversize"
	case errors.Is(err, domain.ErrFetchStatus):
		return "status"
	default:
		return "failed"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
