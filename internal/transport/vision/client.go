// Package vision provides a VisionClassifier that calls an image-scoring
// sidecar over HTTP.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

const (
	// DefaultTimeout bounds a single prediction.
	DefaultTimeout = 10 * time.Second
	modalityLabel  = "vision"
)

// Config holds the sidecar settings.
type Config struct {
	URL     string // base URL, e.g. "http://nsfw-vision:8002"
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client calls the sidecar's /predict endpoint. It is safe for concurrent use.
type Client struct {
	predictURL string
	healthURL  string
	http       *http.Client
	logger     *zap.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.URL, "/")
	return &Client{
		predictURL: base + "/predict",
		healthURL:  base + "/health",
		http:       &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type predictResponse struct {
	Score *float64 `json:"score"`
}

// Predict sends raw image bytes and returns the sidecar's unsafe score.
func (c *Client) Predict(ctx context.Context, image []byte) (float64, error) {
	start := time.Now()
	score, err := c.predict(ctx, image)
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(modalityLabel, "error").Inc()
		c.logger.Warn("Vision sidecar prediction failed", zap.Error(err))
		return 0, err
	}
	metrics.ClassifierRequestsTotal.WithLabelValues(modalityLabel, "success").Inc()
	metrics.ClassifierDuration.WithLabelValues(modalityLabel).Observe(time.Since(start).Seconds())
	return score, nil
}

func (c *Client) predict(ctx context.Context, image []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.predictURL, bytes.NewReader(image))
	if err != nil {
		return 0, fmt.Errorf("vision: request: %w: %w", domain.ErrClassifier, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("vision: sidecar unreachable: %w: %w", domain.ErrClassifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("vision: status %d: %s: %w",
			resp.StatusCode, strings.TrimSpace(string(body)), domain.ErrClassifier)
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("vision: decode: %w: %w", domain.ErrClassifier, err)
	}
	if out.Score == nil {
		return 0, fmt.Errorf("vision: response has no score: %w", domain.ErrClassifier)
	}
	s := *out.Score
	if math.IsNaN(s) || s < 0 || s > 1 {
		return 0, fmt.Errorf("vision: score %v out of range: %w", s, domain.ErrClassifier)
	}
	return s, nil
}

// HealthCheck calls the sidecar's /health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("vision: health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vision: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vision: health status %d", resp.StatusCode)
	}
	return nil
}
