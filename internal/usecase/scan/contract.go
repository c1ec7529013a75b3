package scan

import (
	"context"

	"github.com/kailas-cloud/guardscan/internal/blocklist"
	"github.com/kailas-cloud/guardscan/internal/cache"
	"github.com/kailas-cloud/guardscan/internal/content"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
	"github.com/kailas-cloud/guardscan/internal/keywords"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

// domainBlocklist is the blocked-domain lookup.
type domainBlocklist interface {
	Lookup(host string) (string, bool)
	Stats() blocklist.Stats
}

// keywordAnalyzer scores text against the keyword database.
type keywordAnalyzer interface {
	Analyze(text string) keywords.Analysis
	Len() int
	Languages() []string
}

// resultCache is the in-process verdict cache.
type resultCache interface {
	Get(key string) (verdict.Result, bool)
	Put(key string, value verdict.Result)
	Stats() cache.Stats
}

// sharedStore is the optional cross-instance verdict cache.
type sharedStore interface {
	Get(ctx context.Context, fingerprint string) (verdict.Result, bool)
	Put(ctx context.Context, fingerprint string, r verdict.Result)
}

// recorder is the latency window.
type recorder interface {
	LogRequest(latencyMs float64, failed bool)
	Stats() metrics.Stats
}

// imageDecoder validates image bytes.
type imageDecoder interface {
	Decode(data []byte) (content.ImageInfo, error)
}
