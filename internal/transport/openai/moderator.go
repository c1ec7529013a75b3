package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

// DefaultMaxInputRunes caps the text sent per moderation call.
const DefaultMaxInputRunes = 20000

const modalityLabel = "text"

// Moderator is a text classifier backed by an OpenAI-compatible moderation endpoint.
// The score is the highest category score across all results.
type Moderator struct {
	client        *openai.Client
	model         string
	maxInputRunes int
	logger        *zap.Logger
}

// Config holds the moderation provider settings.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxInputRunes int
	Timeout       time.Duration // per-call HTTP timeout, 0 keeps the client default
	Logger        *zap.Logger
}

// NewModerator creates an OpenAI-compatible moderation client.
func NewModerator(cfg *Config) *Moderator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	maxRunes := cfg.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Moderator{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         cfg.Model,
		maxInputRunes: maxRunes,
		logger:        logger,
	}
}

// Predict implements domain.TextClassifier.
func (m *Moderator) Predict(ctx context.Context, text string) (float64, error) {
	start := time.Now()

	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{
		Input: truncateRunes(text, m.maxInputRunes),
		Model: m.model,
	})

	duration := time.Since(start)

	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues(modalityLabel, "error").Inc()
		return 0, parseAPIError(err)
	}
	if len(resp.Results) == 0 {
		metrics.ClassifierRequestsTotal.WithLabelValues(modalityLabel, "error").Inc()
		return 0, fmt.Errorf("empty moderation response: %w", domain.ErrClassifier)
	}

	metrics.ClassifierRequestsTotal.WithLabelValues(modalityLabel, "success").Inc()
	metrics.ClassifierDuration.WithLabelValues(modalityLabel).Observe(duration.Seconds())

	var score float64
	for _, r := range resp.Results {
		score = max(score, maxCategoryScore(r.CategoryScores))
	}
	return min(score, 1.0), nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (m *Moderator) HealthCheck(ctx context.Context) error {
	if _, err := m.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func maxCategoryScore(s openai.ResultCategoryScores) float64 {
	return slices.Max([]float64{
		float64(s.Hate),
		float64(s.HateThreatening),
		float64(s.Harassment),
		float64(s.HarassmentThreatening),
		float64(s.SelfHarm),
		float64(s.SelfHarmIntent),
		float64(s.SelfHarmInstructions),
		float64(s.Sexual),
		float64(s.SexualMinors),
		float64(s.Violence),
		float64(s.ViolenceGraphic),
	})
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrClassifier.
func parseAPIError(err error) error {
	wrap := domain.ErrClassifier

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("moderation API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("moderation API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("moderation API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("moderation request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
