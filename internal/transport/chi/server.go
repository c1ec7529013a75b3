package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/domain"
	domusage "github.com/kailas-cloud/guardscan/internal/domain/usage"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	logpkg "github.com/kailas-cloud/guardscan/internal/logger"
	healthuc "github.com/kailas-cloud/guardscan/internal/usecase/health"
	"github.com/kailas-cloud/guardscan/internal/usecase/scan"
	usageuc "github.com/kailas-cloud/guardscan/internal/usecase/usage"
	"github.com/kailas-cloud/guardscan/internal/version"
)

// DefaultMaxUploadBytes bounds request bodies.
const DefaultMaxUploadBytes = 10 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// scanner is the scan pipeline as seen by the HTTP layer.
type scanner interface {
	ScanURL(ctx context.Context, rawURL string) verdict.Result
	ScanText(ctx context.Context, text string) verdict.Result
	ScanImage(ctx context.Context, data []byte) verdict.Result
	Diagnostics() scan.Diagnostics
}

// Server serves the scan API.
type Server struct {
	scan           scanner
	health         *healthuc.Service
	usage          *usageuc.Service
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(scan scanner, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		scan:           scan,
		health:         health,
		usage:          usageuc.New(),
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, CodePayloadTooLarge),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidURL, http.StatusBadRequest, CodeValidationFailed),
	}
	return s
}

// WithMaxUploadBytes sets the request body limit.
func (s *Server) WithMaxUploadBytes(n int64) *Server {
	if n > 0 {
		s.maxUploadBytes = n
	}
	return s
}

// WithUsage sets the classifier budget reporter. Nil keeps the empty one.
func (s *Server) WithUsage(u *usageuc.Service) *Server {
	if u != nil {
		s.usage = u
	}
	return s
}

// Mount registers all routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan/url", s.ScanURL)
		r.Post("/scan/text", s.ScanText)
		r.Post("/scan/image", s.ScanImage)
		r.Get("/diagnostics", s.Diagnostics)
		r.Get("/usage", s.GetUsage)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	})
}

// ScanURL handles POST /api/v1/scan/url.
func (s *Server) ScanURL(w http.ResponseWriter, r *http.Request) {
	var req ScanURLRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.handleDomainError(w, r, fmt.Errorf("url: %w", domain.ErrEmptyInput))
		return
	}
	if _, err := domain.ParseScanURL(req.URL); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx := logpkg.With(r.Context(), zap.String("scan", "url"))
	writeScan(ctx, w, s.scan.ScanURL(ctx, req.URL))
}

// ScanText handles POST /api/v1/scan/text.
func (s *Server) ScanText(w http.ResponseWriter, r *http.Request) {
	var req ScanTextRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.handleDomainError(w, r, fmt.Errorf("text: %w", domain.ErrEmptyInput))
		return
	}

	ctx := logpkg.With(r.Context(), zap.String("scan", "text"), zap.Int("text_bytes", len(req.Text)))
	writeScan(ctx, w, s.scan.ScanText(ctx, req.Text))
}

// ScanImage handles POST /api/v1/scan/image. The image is either the multipart
// field "file" or the raw request body.
func (s *Server) ScanImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	data, err := s.readImage(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx := logpkg.With(r.Context(), zap.String("scan", "image"), zap.Int("image_bytes", len(data)))
	writeScan(ctx, w, s.scan.ScanImage(ctx, data))
}

func writeScan(ctx context.Context, w http.ResponseWriter, res verdict.Result) {
	logpkg.FromContext(ctx).Debug("scan verdict",
		zap.Bool("safe", res.IsSafe()),
		zap.Float64("score", res.Score()),
		zap.Float64("uncertainty", res.Uncertainty()),
		zap.Duration("latency", res.Latency()),
	)
	writeJSON(w, http.StatusOK, scanResponse(res))
}

// Diagnostics handles GET /api/v1/diagnostics.
func (s *Server) Diagnostics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DiagnosticsResponse{
		Diagnostics: s.scan.Diagnostics(),
		Build: VersionInfo{
			Version: version.Version,
			Commit:  version.Commit,
			Date:    version.Date,
		},
	})
}

// GetUsage handles GET /api/v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period, err := domusage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	reports := s.usage.GetReport(r.Context(), period)
	resp := UsageResponse{
		Period:      string(period),
		Classifiers: make([]ClassifierUsage, 0, len(reports)),
	}
	for i := range reports {
		resp.Classifiers = append(resp.Classifiers, classifierUsage(reports[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if tooLarge(err) {
			return fmt.Errorf("%w: limit %d bytes", domain.ErrPayloadTooLarge, s.maxUploadBytes)
		}
		return &badRequestError{msg: "Invalid request body: " + err.Error()}
	}
	return nil
}

func (s *Server) readImage(r *http.Request) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		data, err = s.readMultipartFile(r)
	} else {
		data, err = io.ReadAll(r.Body)
	}
	if err != nil {
		if tooLarge(err) {
			return nil, fmt.Errorf("%w: limit %d bytes", domain.ErrPayloadTooLarge, s.maxUploadBytes)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image: %w", domain.ErrEmptyInput)
	}
	return data, nil
}

func (s *Server) readMultipartFile(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		if tooLarge(err) {
			return nil, err
		}
		return nil, &badRequestError{msg: "Invalid multipart body: " + err.Error()}
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("file field: %w", domain.ErrEmptyInput)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// badRequestError carries a client-facing message for malformed requests.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequestHandler(w http.ResponseWriter, err error, _ string) bool {
	var bre *badRequestError
	if !errors.As(err, &bre) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeBadRequest, bre.msg)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrPayloadTooLarge,
		domain.ErrEmptyInput,
		domain.ErrInvalidURL,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("request rejected", zap.Error(err))
	if badRequestHandler(w, err, "") {
		return
	}
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
