// Package fetcher downloads scan targets over HTTP with a byte budget and a deadline.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

// DefaultUserAgent identifies the scanner to origins.
const DefaultUserAgent = "AntiLust-Guardian/1.0 (Security Scanner; +https://antilust.com)"

const maxRedirects = 5

// Config holds the fetcher settings.
type Config struct {
	UserAgent  string
	RatePerSec float64 // outbound requests per second, 0 disables limiting
	Burst      int
	Client     *http.Client // optional, for tests
	Logger     *zap.Logger
}

// Fetcher implements domain.ContentFetcher.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *zap.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{client: client, userAgent: ua, logger: logger}
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return f
}

// Fetch downloads rawURL. Errors wrap one of domain.ErrFetchTimeout,
// domain.ErrFetchOversize, domain.ErrFetchStatus or domain.ErrFetchFailed.
// A body longer than maxBytes is an error, not a truncation.
func (f *Fetcher) Fetch(
	ctx context.Context, rawURL string, maxBytes int64, timeout time.Duration,
) (string, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	contentType, body, err := f.fetch(ctx, rawURL, maxBytes)
	outcome := outcomeOf(err)
	metrics.FetchTotal.WithLabelValues(outcome).Inc()
	if err != nil {
		f.logger.Debug("Fetch failed", zap.String("url", rawURL), zap.String("outcome", outcome), zap.Error(err))
		return "", nil, err
	}
	metrics.FetchBytes.Observe(float64(len(body)))
	return contentType, body, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, maxBytes int64) (string, []byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", nil, classify(ctx, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w: %w", domain.ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", nil, domain.NewFetchStatus(resp.StatusCode)
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return "", nil, fmt.Errorf("%w: content-length %d exceeds %d bytes",
			domain.ErrFetchOversize, resp.ContentLength, maxBytes)
	}

	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", nil, classify(ctx, fmt.Errorf("read body: %w", err))
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return "", nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrFetchOversize, maxBytes)
	}

	return resp.Header.Get("Content-Type"), body, nil
}

// classify maps transport errors onto the fetch error taxonomy.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", domain.ErrFetchTimeout, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
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
