// Package usage describes classifier call budgets over a reporting period.
package usage

import (
	"fmt"
	"time"
)

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value onto a Period. Empty means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Bounds returns the UTC start and end of the period containing now.
func (p Period) Bounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if p == PeriodMonth {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Report is one classifier's call budget for a period.
type Report struct {
	classifier  string
	period      Period
	periodStart int64
	periodEnd   int64
	used        int64
	limit       int64
	remaining   int64
}

// NewReport creates a usage report. Timestamps are unix millis; limit 0 and
// remaining -1 mean unlimited.
func NewReport(classifier string, period Period, start, end, used, limit, remaining int64) Report {
	return Report{
		classifier:  classifier,
		period:      period,
		periodStart: start,
		periodEnd:   end,
		used:        used,
		limit:       limit,
		remaining:   remaining,
	}
}

// Classifier returns the classifier name.
func (r Report) Classifier() string { return r.classifier }

// Period returns the aggregation granularity.
func (r Report) Period() Period { return r.period }

// PeriodStart returns the period start timestamp (unix millis).
func (r Report) PeriodStart() int64 { return r.periodStart }

// PeriodEnd returns the period end timestamp (unix millis).
func (r Report) PeriodEnd() int64 { return r.periodEnd }

// Used returns calls recorded in the period.
func (r Report) Used() int64 { return r.used }

// Limit returns the cap, 0 if unlimited.
func (r Report) Limit() int64 { return r.limit }

// Remaining returns calls left, -1 if unlimited.
func (r Report) Remaining() int64 { return r.remaining }

// IsExhausted reports whether a capped budget is spent.
func (r Report) IsExhausted() bool { return r.limit > 0 && r.remaining <= 0 }

// ResetsAt returns when the counter rolls over (unix millis).
func (r Report) ResetsAt() int64 { return r.periodEnd }
