package verdictstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
)

func TestPutThenGet_RoundTrip(t *testing.T) {
	s, ms := newTestStore(t)
	ctx := context.Background()

	stored := map[string][]byte{}
	var gotTTL time.Duration
	ms.setFn = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		stored[key] = value
		gotTTL = ttl
		return nil
	}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		v, ok := stored[key]
		if !ok {
			t.Fatalf("unexpected key %s", key)
		}
		return v, nil
	}

	in := verdict.New(verdict.Params{
		Safe:        false,
		Score:       0.8,
		Uncertainty: 0.2,
		Flags:       []verdict.Flag{verdict.FlagToxicText, verdict.FlagKeywordsDetected},
		Details:     map[string]any{"model_score": 0.9},
		Latency:     12 * time.Millisecond,
	})
	s.Put(ctx, "text:abc", in)

	if gotTTL != time.Hour {
		t.Errorf("ttl = %v, want 1h", gotTTL)
	}
	for k := range stored {
		if !strings.HasPrefix(k, "test:verdict:") {
			t.Errorf("unexpected key %q", k)
		}
	}

	out, ok := s.Get(ctx, "text:abc")
	if !ok {
		t.Fatal("expected hit")
	}
	if out.IsSafe() || out.Score() != 0.8 || out.Uncertainty() != 0.2 {
		t.Errorf("got safe=%v score=%v unc=%v", out.IsSafe(), out.Score(), out.Uncertainty())
	}
	if !out.HasFlag(verdict.FlagToxicText) || !out.HasFlag(verdict.FlagKeywordsDetected) {
		t.Errorf("flags = %v", out.Flags())
	}
	if out.Details()["model_score"] != 0.9 {
		t.Errorf("details = %v", out.Details())
	}
	if out.LatencyMs() != 12 {
		t.Errorf("latency = %v", out.LatencyMs())
	}
}

func TestGet_NotFoundIsMiss(t *testing.T) {
	s, _ := newTestStore(t)
	if _, ok := s.Get(context.Background(), "url:http://example.com/"); ok {
		t.Fatal("expected miss")
	}
}

func TestGet_BackendErrorIsMiss(t *testing.T) {
	s, ms := newTestStore(t)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, errors.New("connection refused")
	}
	if _, ok := s.Get(context.Background(), "k"); ok {
		t.Fatal("expected miss on backend error")
	}
}

func TestGet_CorruptPayloadIsMiss(t *testing.T) {
	s, ms := newTestStore(t)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte("{not json"), nil
	}
	if _, ok := s.Get(context.Background(), "k"); ok {
		t.Fatal("expected miss on corrupt payload")
	}
}

func TestPut_BackendErrorSwallowed(t *testing.T) {
	s, ms := newTestStore(t)
	var called bool
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error {
		called = true
		return errors.New("READONLY")
	}
	s.Put(context.Background(), "k", verdict.New(verdict.Params{Safe: true}))
	if !called {
		t.Fatal("expected SET to be attempted")
	}
}

func TestKey_StableAndPrefixed(t *testing.T) {
	s := New(&mockKVStore{}, "", time.Hour, nil, zap.NewNop())
	k1 := s.key("url:https://example.com/a")
	k2 := s.key("url:https://example.com/a")
	k3 := s.key("url:https://example.com/b")
	if k1 != k2 {
		t.Error("key not stable")
	}
	if k1 == k3 {
		t.Error("distinct fingerprints collide")
	}
	if !strings.HasPrefix(k1, DefaultKeyPrefix+"verdict:") || len(k1) != len(DefaultKeyPrefix+"verdict:")+64 {
		t.Errorf("unexpected key %q", k1)
	}
}

func TestMetrics(t *testing.T) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_shared_total"}, []string{"tier", "result"})
	ms := &mockKVStore{}
	s := New(ms, "", time.Hour, total, zap.NewNop())

	s.Get(context.Background(), "a")
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return []byte(`{"safe":true,"score":0,"uncertainty":1,"flags":["error"]}`), nil
	}
	r, ok := s.Get(context.Background(), "b")
	if !ok || !r.HasFlag(verdict.FlagError) {
		t.Fatalf("expected decoded fail-open verdict, got %v %v", r.Flags(), ok)
	}

	if v := testutil.ToFloat64(total.WithLabelValues("shared", "miss")); v != 1 {
		t.Errorf("miss = %v", v)
	}
	if v := testutil.ToFloat64(total.WithLabelValues("shared", "hit")); v != 1 {
		t.Errorf("hit = %v", v)
	}
}
