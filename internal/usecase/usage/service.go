package usage

import (
	"context"
	"slices"
	"time"

	domusage "github.com/kailas-cloud/guardscan/internal/domain/usage"
)

// Service reports per-classifier call usage against quota.
type Service struct {
	readers map[string]QuotaReader
	now     func() time.Time
}

// New creates a Service with no classifiers attached.
func New() *Service {
	return &Service{
		readers: make(map[string]QuotaReader),
		now:     time.Now,
	}
}

// WithClassifier attaches the quota counters of a classifier. A nil reader is ignored.
func (s *Service) WithClassifier(name string, q QuotaReader) *Service {
	if q != nil {
		s.readers[name] = q
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetReport builds one report per attached classifier, sorted by name.
func (s *Service) GetReport(_ context.Context, period domusage.Period) []domusage.Report {
	start, end := period.Bounds(s.now())

	names := make([]string, 0, len(s.readers))
	for name := range s.readers {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]domusage.Report, 0, len(names))
	for _, name := range names {
		br := s.readers[name]
		var used, limit, remaining int64
		switch period {
		case domusage.PeriodMonth:
			used, limit, remaining = br.MonthlyUsed(), br.MonthlyLimit(), br.RemainingMonthly()
		default:
			used, limit, remaining = br.DailyUsed(), br.DailyLimit(), br.RemainingDaily()
		}
		out = append(out, domusage.NewReport(
			name, period, start.UnixMilli(), end.UnixMilli(), used, limit, remaining,
		))
	}
	return out
}
