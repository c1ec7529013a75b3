package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/guardscan/internal/db"
)

// Get returns the value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, wrap(db.OpGet, err)
	}
	return data, nil
}

// SetWithTTL stores value under key. A non-positive ttl stores without expiry.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := s.client.B().Set().Key(key).Value(rueidis.BinaryString(value))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = set.Px(ttl).Build()
	} else {
		cmd = set.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return wrap(db.OpSet, err)
	}
	return nil
}

// IncrBy adds val to the counter at key, creating it at zero.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.client.Do(ctx, s.client.B().Incrby().Key(key).Increment(val).Build()).Error(); err != nil {
		return wrap(db.OpIncrBy, err)
	}
	return nil
}

// Expire sets a TTL on key, rounded up to whole seconds. With nx the TTL is
// only set when the key has none.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	exp := s.client.B().Expire().Key(key).Seconds(secs)
	var cmd rueidis.Completed
	if nx {
		cmd = exp.Nx().Build()
	} else {
		cmd = exp.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return wrap(db.OpExpire, err)
	}
	return nil
}

// Del removes key. A missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return wrap(db.OpDel, err)
	}
	return nil
}
