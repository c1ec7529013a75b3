package classify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
)

func TestQuotaTracker_RejectWhenExceeded(t *testing.T) {
	q := NewQuotaTracker("text", 100, 0, QuotaActionReject, zap.NewNop())

	q.Record(100)

	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrClassifierQuotaExceeded) {
		t.Fatalf("expected ErrClassifierQuotaExceeded, got %v", err)
	}
}

func TestQuotaTracker_WarnWhenExceeded(t *testing.T) {
	q := NewQuotaTracker("text", 100, 0, QuotaActionWarn, zap.NewNop())

	q.Record(200)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for warn action, got %v", err)
	}
}

func TestQuotaTracker_MonthlyReject(t *testing.T) {
	q := NewQuotaTracker("text", 0, 500, QuotaActionReject, zap.NewNop())

	q.Record(500)

	if err := q.Check(context.Background()); !errors.Is(err, domain.ErrClassifierQuotaExceeded) {
		t.Fatalf("expected ErrClassifierQuotaExceeded for monthly limit, got %v", err)
	}
}

func TestQuotaTracker_UnlimitedWhenZero(t *testing.T) {
	q := NewQuotaTracker("text", 0, 0, QuotaActionReject, zap.NewNop())

	q.Record(999999999)

	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for unlimited quota, got %v", err)
	}
	if q.RemainingDaily() != -1 || q.RemainingMonthly() != -1 {
		t.Errorf("expected -1 for unlimited, got %d/%d", q.RemainingDaily(), q.RemainingMonthly())
	}
}

func TestQuotaTracker_Remaining(t *testing.T) {
	q := NewQuotaTracker("text", 1000, 10000, QuotaActionWarn, zap.NewNop())

	q.Record(300)

	if daily := q.RemainingDaily(); daily != 700 {
		t.Errorf("expected daily remaining 700, got %d", daily)
	}
	if monthly := q.RemainingMonthly(); monthly != 9700 {
		t.Errorf("expected monthly remaining 9700, got %d", monthly)
	}

	q.Record(5000)
	if daily := q.RemainingDaily(); daily != 0 {
		t.Errorf("expected daily remaining clamped to 0, got %d", daily)
	}
}

func TestQuotaTracker_UsedCounters(t *testing.T) {
	q := NewQuotaTracker("vision", 50, 500, QuotaActionWarn, zap.NewNop())
	q.Record(7)
	q.Record(3)

	if q.Name() != "vision" {
		t.Errorf("expected name vision, got %q", q.Name())
	}
	if q.DailyUsed() != 10 || q.MonthlyUsed() != 10 {
		t.Errorf("expected 10/10 used, got %d/%d", q.DailyUsed(), q.MonthlyUsed())
	}
	if q.DailyLimit() != 50 || q.MonthlyLimit() != 500 {
		t.Errorf("expected limits 50/500, got %d/%d", q.DailyLimit(), q.MonthlyLimit())
	}
}

func TestQuotaTracker_DayRollover(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)
	q := NewQuotaTracker("text", 10, 100, QuotaActionReject, zap.NewNop()).
		WithClock(func() time.Time { return now })

	q.Record(10)
	if err := q.Check(context.Background()); err == nil {
		t.Fatal("expected daily quota to be exhausted")
	}

	now = now.Add(2 * time.Minute) // April 1st
	if err := q.Check(context.Background()); err != nil {
		t.Fatalf("expected fresh day and month, got %v", err)
	}
	if q.RemainingMonthly() != 100 {
		t.Errorf("monthly counter should reset on month change, remaining %d", q.RemainingMonthly())
	}
}

type mockQuotaStore struct {
	mu     sync.Mutex
	data   map[string]int64
	getErr error
	setErr error
}

func newMockQuotaStore() *mockQuotaStore {
	return &mockQuotaStore{data: make(map[string]int64)}
}

func (m *mockQuotaStore) IncrBy(_ context.Context, key string, val int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] += val
	return nil
}

func (m *mockQuotaStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[key], nil
}

func TestQuotaTracker_WithStore_LoadsValues(t *testing.T) {
	now := time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)
	store := newMockQuotaStore()
	store.data["gs:quota:text:daily:2026-05-14"] = 300
	store.data["gs:quota:text:monthly:2026-05"] = 5000

	q := NewQuotaTracker("text", 1000, 10000, QuotaActionReject, zap.NewNop()).
		WithClock(func() time.Time { return now }).
		WithStore(context.Background(), store, "gs:")

	if q.RemainingDaily() != 700 {
		t.Errorf("expected daily remaining 700, got %d", q.RemainingDaily())
	}
	if q.RemainingMonthly() != 5000 {
		t.Errorf("expected monthly remaining 5000, got %d", q.RemainingMonthly())
	}
}

func TestQuotaTracker_Record_PersistsToStore(t *testing.T) {
	now := time.Date(2026, 5, 14, 12, 0, 0, 0, time.UTC)
	store := newMockQuotaStore()
	q := NewQuotaTracker("vision", 0, 0, QuotaActionWarn, zap.NewNop()).
		WithClock(func() time.Time { return now }).
		WithStore(context.Background(), store, "")

	q.Record(1)
	q.Record(2)

	store.mu.Lock()
	defer store.mu.Unlock()
	if got := store.data["guardscan:quota:vision:daily:2026-05-14"]; got != 3 {
		t.Errorf("expected store daily=3, got %d", got)
	}
	if got := store.data["guardscan:quota:vision:monthly:2026-05"]; got != 3 {
		t.Errorf("expected store monthly=3, got %d", got)
	}
}

func TestQuotaTracker_StoreErrorsDoNotBlock(t *testing.T) {
	store := newMockQuotaStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")

	q := NewQuotaTracker("text", 5, 0, QuotaActionReject, zap.NewNop()).
		WithStore(context.Background(), store, "")
	q.Record(1)

	if q.RemainingDaily() != 4 {
		t.Errorf("in-memory counter should still advance, remaining %d", q.RemainingDaily())
	}
}
