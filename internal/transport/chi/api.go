package chi

import (
	"time"

	domusage "github.com/kailas-cloud/guardscan/internal/domain/usage"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	"github.com/kailas-cloud/guardscan/internal/usecase/scan"
)

// ErrorCode is a machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodePayloadTooLarge  ErrorCode = "payload_too_large"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeNotFound         ErrorCode = "not_found"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ScanURLRequest is the body of POST /api/v1/scan/url.
type ScanURLRequest struct {
	URL string `json:"url"`
}

// ScanTextRequest is the body of POST /api/v1/scan/text.
type ScanTextRequest struct {
	Text string `json:"text"`
}

// ScanResponse is a scan verdict.
type ScanResponse struct {
	IsSafe      bool           `json:"is_safe"`
	Score       float64        `json:"score"`
	Uncertainty float64        `json:"uncertainty"`
	Flags       []string       `json:"flags"`
	Details     map[string]any `json:"details"`
	LatencyMs   float64        `json:"latency_ms"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// VersionInfo is the build metadata reported by diagnostics.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// DiagnosticsResponse is the body of GET /api/v1/diagnostics.
type DiagnosticsResponse struct {
	scan.Diagnostics
	Build VersionInfo `json:"build"`
}

func scanResponse(r verdict.Result) ScanResponse {
	flags := r.Flags()
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	details := r.Details()
	if details == nil {
		details = map[string]any{}
	}
	return ScanResponse{
		IsSafe:      r.IsSafe(),
		Score:       r.Score(),
		Uncertainty: r.Uncertainty(),
		Flags:       out,
		Details:     details,
		LatencyMs:   r.LatencyMs(),
	}
}

// UsageResponse lists classifier call budgets for one period.
type UsageResponse struct {
	Period      string            `json:"period"`
	Classifiers []ClassifierUsage `json:"classifiers"`
}

// ClassifierUsage is one classifier's budget. Limit 0 and remaining -1 mean unlimited.
type ClassifierUsage struct {
	Classifier    string    `json:"classifier"`
	Used          int64     `json:"used"`
	Limit         int64     `json:"limit"`
	Remaining     int64     `json:"remaining"`
	IsExhausted   bool      `json:"is_exhausted"`
	PeriodStartAt time.Time `json:"period_start_at"`
	PeriodEndAt   time.Time `json:"period_end_at"`
	ResetsAt      time.Time `json:"resets_at"`
}

func classifierUsage(r domusage.Report) ClassifierUsage {
	return ClassifierUsage{
		Classifier:    r.Classifier(),
		Used:          r.Used(),
		Limit:         r.Limit(),
		Remaining:     r.Remaining(),
		IsExhausted:   r.IsExhausted(),
		PeriodStartAt: time.UnixMilli(r.PeriodStart()).UTC(),
		PeriodEndAt:   time.UnixMilli(r.PeriodEnd()).UTC(),
		ResetsAt:      time.UnixMilli(r.ResetsAt()).UTC(),
	}
}
