package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/cache"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	healthuc "github.com/kailas-cloud/guardscan/internal/usecase/health"
	"github.com/kailas-cloud/guardscan/internal/usecase/scan"
	usageuc "github.com/kailas-cloud/guardscan/internal/usecase/usage"
)

// --- Mocks ---

type mockScanner struct {
	result  verdict.Result
	lastURL string
	text    string
	image   []byte
	calls   int
}

func (m *mockScanner) ScanURL(_ context.Context, rawURL string) verdict.Result {
	m.calls++
	m.lastURL = rawURL
	return m.result
}

func (m *mockScanner) ScanText(_ context.Context, text string) verdict.Result {
	m.calls++
	m.text = text
	return m.result
}

func (m *mockScanner) ScanImage(_ context.Context, data []byte) verdict.Result {
	m.calls++
	m.image = data
	return m.result
}

func (m *mockScanner) Diagnostics() scan.Diagnostics {
	return scan.Diagnostics{Cache: cache.Stats{Size: 3, Capacity: 10}, Classifiers: map[string]bool{"text": true}}
}

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

type mockQuota struct{ used, limit int64 }

func (m *mockQuota) DailyLimit() int64       { return m.limit }
func (m *mockQuota) MonthlyLimit() int64     { return m.limit * 30 }
func (m *mockQuota) DailyUsed() int64        { return m.used }
func (m *mockQuota) MonthlyUsed() int64      { return m.used }
func (m *mockQuota) RemainingDaily() int64   { return max(m.limit-m.used, 0) }
func (m *mockQuota) RemainingMonthly() int64 { return max(m.limit*30-m.used, 0) }

func newTestRouter(sc *mockScanner, health *healthuc.Service) http.Handler {
	if health == nil {
		health = healthuc.New(nil)
	}
	s := NewServer(sc, health, zap.NewNop()).WithMaxUploadBytes(1024)
	r := chi.NewRouter()
	s.Mount(r)
	return r
}

func blockedResult() verdict.Result {
	return verdict.Blocked(map[string]any{"blocked_by": "bad.example"}, 3*time.Millisecond)
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}

// --- Tests ---

func TestScanURL_OK(t *testing.T) {
	sc := &mockScanner{result: blockedResult()}
	h := newTestRouter(sc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/url", strings.NewReader(`{"url":"https://bad.example/x"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp ScanResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.IsSafe || resp.Score != 1 || resp.Uncertainty != 0 {
		t.Errorf("unexpected verdict %+v", resp)
	}
	if len(resp.Flags) != 1 || resp.Flags[0] != "domain_blocklist" {
		t.Errorf("flags = %v", resp.Flags)
	}
	if resp.LatencyMs != 3 {
		t.Errorf("latency_ms = %v, want 3", resp.LatencyMs)
	}
	if sc.lastURL != "https://bad.example/x" {
		t.Errorf("scanned %q", sc.lastURL)
	}
}

func TestScanURL_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code ErrorCode
	}{
		{"malformed json", `{"url":`, CodeBadRequest},
		{"empty url", `{"url":"  "}`, CodeValidationFailed},
		{"bad scheme", `{"url":"ftp://example.com"}`, CodeValidationFailed},
		{"no host", `{"url":"http://"}`, CodeValidationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc := &mockScanner{}
			h := newTestRouter(sc, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/url", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if e := decodeError(t, rr); e.Code != tc.code {
				t.Errorf("code = %s, want %s", e.Code, tc.code)
			}
			if sc.calls != 0 {
				t.Error("scanner should not be called")
			}
		})
	}
}

func TestScanText_OK(t *testing.T) {
	sc := &mockScanner{result: verdict.New(verdict.Params{Safe: true, Score: 0.1, Uncertainty: 0.1})}
	h := newTestRouter(sc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(`{"text":"hello"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if sc.text != "hello" {
		t.Errorf("scanned %q", sc.text)
	}
	var resp ScanResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Flags == nil || resp.Details == nil {
		t.Error("flags and details must encode as empty collections, not null")
	}
}

func TestScanText_Empty(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(`{"text":""}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestScanText_TooLarge(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	body := `{"text":"` + strings.Repeat("a", 2048) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/text", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodePayloadTooLarge {
		t.Errorf("code = %s", e.Code)
	}
}

func TestScanImage_RawBody(t *testing.T) {
	sc := &mockScanner{result: verdict.FailOpen(verdict.FlagImageDecodeError, nil, 0)}
	h := newTestRouter(sc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", bytes.NewReader([]byte{1, 2, 3}))
	req.Header.Set("Content-Type", "application/octet-stream")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !bytes.Equal(sc.image, []byte{1, 2, 3}) {
		t.Errorf("image = %v", sc.image)
	}
}

func TestScanImage_Multipart(t *testing.T) {
	sc := &mockScanner{}
	h := newTestRouter(sc, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "x.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("pngbytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if string(sc.image) != "pngbytes" {
		t.Errorf("image = %q", sc.image)
	}
}

func TestScanImage_Empty(t *testing.T) {
	sc := &mockScanner{}
	h := newTestRouter(sc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if sc.calls != 0 {
		t.Error("scanner should not be called")
	}
}

func TestScanImage_TooLarge(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/image", bytes.NewReader(make([]byte, 4096)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
}

func TestDiagnostics(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["cache_size"]; ok {
		t.Error("cache size must only appear under cache")
	}
	cacheStats, _ := body["cache"].(map[string]any)
	if cacheStats["size"] != float64(3) {
		t.Errorf("cache = %v", body["cache"])
	}
	if _, ok := body["build"]; !ok {
		t.Error("missing build info")
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"healthy", nil, http.StatusOK, "ok"},
		{"degraded", errors.New("down"), http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			health := healthuc.New(nil).WithChecker("vision_classifier", &mockChecker{err: tc.err})
			h := newTestRouter(&mockScanner{}, health)

			req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != tc.want {
				t.Errorf("status = %q, want %q", resp.Status, tc.want)
			}
		})
	}
}

func TestNotFound_JSON(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeNotFound {
		t.Errorf("code = %s", e.Code)
	}
}

func TestGetUsage(t *testing.T) {
	u := usageuc.New().WithClassifier("text_classifier", &mockQuota{used: 10, limit: 10})
	s := NewServer(&mockScanner{}, healthuc.New(nil), zap.NewNop()).WithUsage(u)
	r := chi.NewRouter()
	s.Mount(r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?period=month", http.NoBody)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Period != "month" {
		t.Errorf("period = %q", resp.Period)
	}
	if len(resp.Classifiers) != 1 {
		t.Fatalf("classifiers = %d, want 1", len(resp.Classifiers))
	}
	c := resp.Classifiers[0]
	if c.Classifier != "text_classifier" || c.Limit != 300 || c.Remaining != 290 || c.IsExhausted {
		t.Errorf("unexpected usage %+v", c)
	}
	if !c.ResetsAt.After(c.PeriodStartAt) {
		t.Errorf("resets_at %v not after period start %v", c.ResetsAt, c.PeriodStartAt)
	}
}

func TestGetUsage_DefaultsToDay(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp UsageResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Period != "day" || len(resp.Classifiers) != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGetUsage_BadPeriod(t *testing.T) {
	h := newTestRouter(&mockScanner{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?period=total", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if e := decodeError(t, rr); e.Code != CodeValidationFailed {
		t.Errorf("code = %s", e.Code)
	}
}
