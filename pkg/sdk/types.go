package guardscan

import (
	"context"
	"time"
)

// VisionClassifier scores raw image bytes in [0,1], higher is less safe.
type VisionClassifier interface {
	Predict(ctx context.Context, image []byte) (float64, error)
}

// TextClassifier scores text in [0,1], higher is less safe.
type TextClassifier interface {
	Predict(ctx context.Context, text string) (float64, error)
}

// Fetcher downloads a URL within maxBytes and timeout and returns its Content-Type and body.
// Implementations should wrap ErrFetchTimeout, ErrFetchOversize or ErrFetchStatus
// so failures are reported accurately.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, maxBytes int64, timeout time.Duration) (string, []byte, error)
}

// KeywordTables maps language -> category -> keyword -> weight in [0,1].
type KeywordTables map[string]map[string]map[string]float64

// Flag values found in Result.Flags.
const (
	FlagDomainBlocklist  = "domain_blocklist"
	FlagError            = "error"
	FlagImageDecodeError = "image_decode_error"
	FlagToxicText        = "toxic_text"
	FlagNSFWText         = "nsfw_text"
	FlagKeywordsDetected = "keywords_detected"
	FlagNSFWImage        = "nsfw_image"
)

// Result is a scan verdict.
type Result struct {
	IsSafe      bool
	Score       float64
	Uncertainty float64
	Flags       []string
	Details     map[string]any // diagnostic only
	Latency     time.Duration
}

// HasFlag reports whether f is set.
func (r Result) HasFlag(f string) bool {
	for _, x := range r.Flags {
		if x == f {
			return true
		}
	}
	return false
}

// Stats is a snapshot of engine performance and state.
type Stats struct {
	Requests       uint64
	Errors         uint64
	ErrorRate      float64
	P50LatencyMs   float64
	P95LatencyMs   float64
	P99LatencyMs   float64
	ThroughputRPS  float64
	CacheSize      int
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
	BlockedDomains int
	Keywords       int
	Languages      []string
}

// HealthStatus represents the aggregated dependency health.
type HealthStatus struct {
	Status string            // "ok", "degraded"
	Checks map[string]string // component -> "ok"/"error"
}
