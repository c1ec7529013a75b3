// Package classify wraps classifier adapters with call quotas and logging.
package classify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/domain/modality"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

// QuotaChecker is the local interface for quota enforcement.
type QuotaChecker interface {
	Check(ctx context.Context) error
	Record(n int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// Transport metrics (requests, duration) are recorded by the adapters.
// This layer owns quota tracking and quota metrics only.
type instrumented struct {
	modality modality.Modality
	quota    QuotaChecker
	logger   *zap.Logger
}

func (p *instrumented) before(ctx context.Context) error {
	if p.quota == nil {
		return nil
	}
	if err := p.quota.Check(ctx); err != nil {
		p.logger.Warn("Classifier quota exceeded, skipping modality",
			zap.Stringer("modality", p.modality),
			zap.Error(err),
		)
		return fmt.Errorf("quota check: %w", err)
	}
	return nil
}

func (p *instrumented) after(score float64, err error, duration time.Duration) {
	if err != nil {
		p.logger.Warn("Classifier call failed",
			zap.Stringer("modality", p.modality),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	} else {
		p.logger.Debug("Classifier call completed",
			zap.Stringer("modality", p.modality),
			zap.Duration("duration", duration),
			zap.Float64("score", score),
		)
	}

	// failed calls still cost a request upstream
	if p.quota != nil {
		p.quota.Record(1)
		remaining := metrics.ClassifierQuotaRemaining
		remaining.WithLabelValues(p.modality.String(), "daily").Set(float64(p.quota.RemainingDaily()))
		remaining.WithLabelValues(p.modality.String(), "monthly").Set(float64(p.quota.RemainingMonthly()))
	}
}

// InstrumentedText wraps a TextClassifier.
type InstrumentedText struct {
	instrumented
	inner domain.TextClassifier
}

// NewInstrumentedText wraps a text classifier. quota may be nil.
func NewInstrumentedText(inner domain.TextClassifier, quota QuotaChecker, logger *zap.Logger) *InstrumentedText {
	return &InstrumentedText{
		instrumented: instrumented{modality: modality.Text, quota: quota, logger: logger},
		inner:        inner,
	}
}

// Predict implements domain.TextClassifier.
func (p *InstrumentedText) Predict(ctx context.Context, text string) (float64, error) {
	if err := p.before(ctx); err != nil {
		return 0, err
	}
	start := time.Now()
	score, err := p.inner.Predict(ctx, text)
	p.after(score, err, time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("text predict: %w", err)
	}
	return score, nil
}

// HealthCheck delegates when the inner classifier supports it.
func (p *InstrumentedText) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, p.inner)
}

// InstrumentedVision wraps a VisionClassifier.
type InstrumentedVision struct {
	instrumented
	inner domain.VisionClassifier
}

// NewInstrumentedVision wraps a vision classifier. quota may be nil.
func NewInstrumentedVision(inner domain.VisionClassifier, quota QuotaChecker, logger *zap.Logger) *InstrumentedVision {
	return &InstrumentedVision{
		instrumented: instrumented{modality: modality.Vision, quota: quota, logger: logger},
		inner:        inner,
	}
}

// Predict implements domain.VisionClassifier.
func (p *InstrumentedVision) Predict(ctx context.Context, image []byte) (float64, error) {
	if err := p.before(ctx); err != nil {
		return 0, err
	}
	start := time.Now()
	score, err := p.inner.Predict(ctx, image)
	p.after(score, err, time.Since(start))
	if err != nil {
		return 0, fmt.Errorf("vision predict: %w", err)
	}
	return score, nil
}

// HealthCheck delegates when the inner classifier supports it.
func (p *InstrumentedVision) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, p.inner)
}

func healthCheck(ctx context.Context, inner any) error {
	hc, ok := inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("classifier health: %w", err)
	}
	return nil
}
