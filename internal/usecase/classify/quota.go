package classify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
)

// QuotaAction defines behavior when a call quota is exceeded.
type QuotaAction string

const (
	// QuotaActionWarn logs a warning but allows the call.
	QuotaActionWarn QuotaAction = "warn"
	// QuotaActionReject blocks the call; the scan drops that modality.
	QuotaActionReject QuotaAction = "reject"
)

// QuotaStore is the persistence interface for quota counters.
type QuotaStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// QuotaTracker counts classifier calls per UTC day and month.
// Check is in-memory only; Record writes behind to the store when one is attached.
type QuotaTracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	dailyLimit     int64
	monthlyLimit   int64
	action         QuotaAction
	name           string
	keyPrefix      string
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          QuotaStore
	now            func() time.Time
	logger         *zap.Logger
}

// NewQuotaTracker creates a tracker for the named classifier. A zero limit is unlimited.
func NewQuotaTracker(
	name string, dailyLimit, monthlyLimit int64,
	action QuotaAction, logger *zap.Logger,
) *QuotaTracker {
	q := &QuotaTracker{
		dailyLimit:   dailyLimit,
		monthlyLimit: monthlyLimit,
		action:       action,
		name:         name,
		keyPrefix:    "guardscan:",
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	now := q.now()
	q.lastDayReset = truncateToDay(now)
	q.lastMonthReset = truncateToMonth(now)
	return q
}

// WithClock overrides the time source.
func (q *QuotaTracker) WithClock(now func() time.Time) *QuotaTracker {
	q.now = func() time.Time { return now().UTC() }
	t := q.now()
	q.lastDayReset = truncateToDay(t)
	q.lastMonthReset = truncateToMonth(t)
	return q
}

// WithStore attaches a persistence store and loads current counters.
func (q *QuotaTracker) WithStore(ctx context.Context, store QuotaStore, keyPrefix string) *QuotaTracker {
	q.store = store
	if keyPrefix != "" {
		q.keyPrefix = keyPrefix
	}
	q.loadFromStore(ctx)
	return q
}

func (q *QuotaTracker) loadFromStore(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if val, err := q.store.Get(ctx, q.dailyKey(now)); err == nil {
		q.dailyUsed = val
	} else {
		q.logger.Warn("Failed to load daily quota from store", zap.Error(err))
	}
	if val, err := q.store.Get(ctx, q.monthlyKey(now)); err == nil {
		q.monthlyUsed = val
	} else {
		q.logger.Warn("Failed to load monthly quota from store", zap.Error(err))
	}

	q.logger.Info("Classifier quota loaded from store",
		zap.String("classifier", q.name),
		zap.Int64("daily_used", q.dailyUsed),
		zap.Int64("monthly_used", q.monthlyUsed),
	)
}

func (q *QuotaTracker) dailyKey(t time.Time) string {
	return fmt.Sprintf("%squota:%s:daily:%s", q.keyPrefix, q.name, t.Format("2006-01-02"))
}

func (q *QuotaTracker) monthlyKey(t time.Time) string {
	return fmt.Sprintf("%squota:%s:monthly:%s", q.keyPrefix, q.name, t.Format("2006-01"))
}

// Check reports whether a new call is allowed.
func (q *QuotaTracker) Check(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetIfNeeded()

	dailyExceeded := q.dailyLimit > 0 && q.dailyUsed >= q.dailyLimit
	monthlyExceeded := q.monthlyLimit > 0 && q.monthlyUsed >= q.monthlyLimit
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if q.action == QuotaActionReject {
		return domain.ErrClassifierQuotaExceeded
	}

	q.logger.Warn("Classifier quota exceeded",
		zap.String("classifier", q.name),
		zap.Int64("daily_used", q.dailyUsed),
		zap.Int64("daily_limit", q.dailyLimit),
		zap.Int64("monthly_used", q.monthlyUsed),
		zap.Int64("monthly_limit", q.monthlyLimit),
	)
	return nil
}

// Record registers n calls.
func (q *QuotaTracker) Record(n int64) {
	q.mu.Lock()
	q.resetIfNeeded()
	q.dailyUsed += n
	q.monthlyUsed += n
	store := q.store
	now := q.now()
	dailyKey := q.dailyKey(now)
	monthlyKey := q.monthlyKey(now)
	q.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := store.IncrBy(ctx, dailyKey, n); err != nil {
		q.logger.Warn("Failed to persist daily quota", zap.String("key", dailyKey), zap.Error(err))
	}
	if err := store.IncrBy(ctx, monthlyKey, n); err != nil {
		q.logger.Warn("Failed to persist monthly quota", zap.String("key", monthlyKey), zap.Error(err))
	}
}

// Name returns the classifier the tracker counts calls for.
func (q *QuotaTracker) Name() string { return q.name }

// DailyLimit returns the daily cap, 0 if unlimited.
func (q *QuotaTracker) DailyLimit() int64 { return q.dailyLimit }

// MonthlyLimit returns the monthly cap, 0 if unlimited.
func (q *QuotaTracker) MonthlyLimit() int64 { return q.monthlyLimit }

// DailyUsed returns calls recorded today.
func (q *QuotaTracker) DailyUsed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return q.dailyUsed
}

// MonthlyUsed returns calls recorded this month.
func (q *QuotaTracker) MonthlyUsed() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return q.monthlyUsed
}

// RemainingDaily returns calls left today (-1 if unlimited).
func (q *QuotaTracker) RemainingDaily() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return remaining(q.dailyLimit, q.dailyUsed)
}

// RemainingMonthly returns calls left this month (-1 if unlimited).
func (q *QuotaTracker) RemainingMonthly() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetIfNeeded()
	return remaining(q.monthlyLimit, q.monthlyUsed)
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(limit-used, 0)
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (q *QuotaTracker) resetIfNeeded() {
	now := q.now()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(q.lastDayReset) {
		q.dailyUsed = 0
		q.lastDayReset = today
	}
	if thisMonth.After(q.lastMonthReset) {
		q.monthlyUsed = 0
		q.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
