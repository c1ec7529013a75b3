package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL signals a URL that cannot be scanned (bad scheme, no host).
	ErrInvalidURL = errors.New("invalid url")
	// ErrEmptyInput signals an empty text or image payload.
	ErrEmptyInput = errors.New("empty input")
	// ErrPayloadTooLarge signals an upload above the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrFetchTimeout signals that fetching content exceeded its deadline.
	ErrFetchTimeout = errors.New("fetch timeout")
	// ErrFetchOversize signals that fetched content exceeded the byte budget.
	ErrFetchOversize = errors.New("fetch oversize")
	// ErrFetchStatus signals a non-200 response from the content origin.
	ErrFetchStatus = errors.New("fetch unexpected status")
	// ErrFetchFailed signals a transport-level fetch failure.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrImageDecode signals image bytes that cannot be decoded.
	ErrImageDecode = errors.New("image decode error")
	// ErrClassifier signals a classifier adapter failure.
	ErrClassifier = errors.New("classifier error")
	// ErrClassifierUnavailable signals that no classifier is configured for a modality.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrClassifierQuotaExceeded signals that a classifier's call budget is spent.
	ErrClassifierQuotaExceeded = errors.New("classifier quota exceeded")
)

// FetchStatusError wraps ErrFetchStatus with the origin's HTTP status.
type FetchStatusError struct {
	StatusCode int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrFetchStatus.Error(), e.StatusCode)
}

func (e *FetchStatusError) Unwrap() error { return ErrFetchStatus }

// NewFetchStatus creates a fetch status error.
func NewFetchStatus(code int) error {
	return &FetchStatusError{StatusCode: code}
}
