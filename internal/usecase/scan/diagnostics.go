package scan

import (
	"github.com/kailas-cloud/guardscan/internal/blocklist"
	"github.com/kailas-cloud/guardscan/internal/cache"
	"github.com/kailas-cloud/guardscan/internal/metrics"
)

// KeywordStats describes the loaded keyword database.
type KeywordStats struct {
	Keywords  int      `json:"keywords"`
	Languages []string `json:"languages"`
}

// Diagnostics is a point-in-time view of the engine.
type Diagnostics struct {
	Performance metrics.Stats   `json:"performance"`
	Cache       cache.Stats     `json:"cache"`
	SharedCache bool            `json:"shared_cache"`
	Blocklist   blocklist.Stats `json:"blocklist"`
	Keywords    KeywordStats    `json:"keywords"`
	Classifiers map[string]bool `json:"classifiers"`
}

// Diagnostics reports performance, cache, blocklist and classifier state.
func (s *Service) Diagnostics() Diagnostics {
	return Diagnostics{
		Performance: s.recorder.Stats(),
		Cache:       s.cache.Stats(),
		SharedCache: s.shared != nil,
		Blocklist:   s.blocklist.Stats(),
		Keywords: KeywordStats{
			Keywords:  s.keywords.Len(),
			Languages: s.keywords.Languages(),
		},
		Classifiers: map[string]bool{
			"vision": s.vision != nil,
			"text":   s.text != nil,
		},
	}
}
