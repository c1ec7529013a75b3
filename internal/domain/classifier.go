package domain

import (
	"context"
	"time"
)

// VisionClassifier scores raw image bytes. Scores are in [0,1], higher is less safe.
// Implementations must be safe for concurrent use.
type VisionClassifier interface {
	Predict(ctx context.Context, image []byte) (float64, error)
}

// TextClassifier scores text. Scores are in [0,1], higher is less safe.
// Implementations must be safe for concurrent use.
type TextClassifier interface {
	Predict(ctx context.Context, text string) (float64, error)
}

// ContentFetcher downloads a URL with a byte budget and a wall-clock timeout.
// It returns the response Content-Type and the body.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string, maxBytes int64, timeout time.Duration) (string, []byte, error)
}

// HealthChecker is implemented by collaborators that can report availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
