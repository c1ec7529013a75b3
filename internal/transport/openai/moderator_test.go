package openai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterScanMetrics()
	os.Exit(m.Run())
}

func moderationServer(t *testing.T, results ...map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/moderations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		out := make([]map[string]any, 0, len(results))
		for _, scores := range results {
			out = append(out, map[string]any{
				"flagged":         false,
				"categories":      map[string]bool{},
				"category_scores": scores,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "modr-1",
			"model":   "omni-moderation-latest",
			"results": out,
		})
	}))
}

func newTestModerator(baseURL string) *Moderator {
	return NewModerator(&Config{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Logger:  zap.NewNop(),
	})
}

func TestModerator_PredictMaxCategory(t *testing.T) {
	server := moderationServer(t, map[string]float64{
		"sexual":     0.93,
		"violence":   0.10,
		"harassment": 0.25,
	})
	defer server.Close()

	score, err := newTestModerator(server.URL).Predict(context.Background(), "some text")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(score-0.93) > 1e-6 {
		t.Errorf("score = %v, want 0.93", score)
	}
}

func TestModerator_PredictAcrossResults(t *testing.T) {
	server := moderationServer(t,
		map[string]float64{"hate": 0.2},
		map[string]float64{"self-harm": 0.6},
	)
	defer server.Close()

	score, err := newTestModerator(server.URL).Predict(context.Background(), "text")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if math.Abs(score-0.6) > 1e-6 {
		t.Errorf("score = %v, want 0.6", score)
	}
}

func TestModerator_EmptyResults(t *testing.T) {
	server := moderationServer(t)
	defer server.Close()

	_, err := newTestModerator(server.URL).Predict(context.Background(), "text")
	if !errors.Is(err, domain.ErrClassifier) {
		t.Fatalf("expected ErrClassifier, got %v", err)
	}
}

func TestModerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	_, err := newTestModerator(server.URL).Predict(context.Background(), "hello")
	if !errors.Is(err, domain.ErrClassifier) {
		t.Fatalf("expected ErrClassifier for 429 response, got %v", err)
	}
}

func TestModerator_TruncatesInput(t *testing.T) {
	var gotRunes int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotRunes = utf8.RuneCountInString(req.Input)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","model":"m","results":[{"category_scores":{}}]}`))
	}))
	defer server.Close()

	m := NewModerator(&Config{APIKey: "k", BaseURL: server.URL, MaxInputRunes: 10})
	if _, err := m.Predict(context.Background(), strings.Repeat("ж", 25)); err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if gotRunes != 10 {
		t.Errorf("sent %d runes, want 10", gotRunes)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"привет", 2, "пр"},
		{"", 5, ""},
	}
	for _, tc := range tests {
		if got := truncateRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestModerator_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	if err := newTestModerator(server.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
