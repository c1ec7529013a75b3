// Package verdictstore shares scan verdicts between instances through the
// key-value backend.
package verdictstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/guardscan/internal/db"
	"github.com/kailas-cloud/guardscan/internal/domain/verdict"
)

// DefaultKeyPrefix namespaces verdict keys.
const DefaultKeyPrefix = "guardscan:"

// store is the consumer interface for the verdict store (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store reads and writes verdicts keyed by content fingerprint.
// Backend failures are logged and reported as misses; they never fail a scan.
type Store struct {
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a verdict store.
// cacheTotal is a counter vec with labels "tier" and "result", passed explicitly.
func New(
	s store, keyPrefix string, ttl time.Duration,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{
		store:      s,
		keyPrefix:  keyPrefix + "verdict:",
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

type verdictDTO struct {
	Safe        bool           `json:"safe"`
	Score       float64        `json:"score"`
	Uncertainty float64        `json:"uncertainty"`
	Flags       []verdict.Flag `json:"flags"`
	Details     map[string]any `json:"details,omitempty"`
	LatencyMs   float64        `json:"latency_ms"`
}

// Get returns the shared verdict for fingerprint.
func (s *Store) Get(ctx context.Context, fingerprint string) (verdict.Result, bool) {
	key := s.key(fingerprint)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			s.logger.Warn("Failed to get shared verdict", zap.String("key", key), zap.Error(err))
		}
		s.inc("miss")
		return verdict.Result{}, false
	}

	var dto verdictDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		s.logger.Warn("Failed to parse shared verdict", zap.String("key", key), zap.Error(err))
		s.inc("miss")
		return verdict.Result{}, false
	}

	s.inc("hit")
	return verdict.New(verdict.Params{
		Safe:        dto.Safe,
		Score:       dto.Score,
		Uncertainty: dto.Uncertainty,
		Flags:       dto.Flags,
		Details:     dto.Details,
		Latency:     time.Duration(dto.LatencyMs * float64(time.Millisecond)),
	}), true
}

// Put stores r under fingerprint with the configured TTL.
func (s *Store) Put(ctx context.Context, fingerprint string, r verdict.Result) {
	key := s.key(fingerprint)
	data, err := json.Marshal(verdictDTO{
		Safe:        r.IsSafe(),
		Score:       r.Score(),
		Uncertainty: r.Uncertainty(),
		Flags:       r.Flags(),
		Details:     r.Details(),
		LatencyMs:   r.LatencyMs(),
	})
	if err != nil {
		s.logger.Warn("Failed to encode verdict", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.store.SetWithTTL(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Failed to store shared verdict", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) key(fingerprint string) string {
	h := sha256.Sum256([]byte(fingerprint))
	return s.keyPrefix + hex.EncodeToString(h[:])
}

func (s *Store) inc(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues("shared", result).Inc()
	}
}
