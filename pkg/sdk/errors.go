package guardscan

import "github.com/kailas-cloud/guardscan/internal/domain"

// Sentinel errors re-exported from the domain layer for custom Fetcher and
// classifier implementations. Use errors.Is() to check.
var (
	ErrFetchTimeout  = domain.ErrFetchTimeout
	ErrFetchOversize = domain.ErrFetchOversize
	ErrFetchStatus   = domain.ErrFetchStatus
	ErrFetchFailed   = domain.ErrFetchFailed
	ErrClassifier    = domain.ErrClassifier
)
