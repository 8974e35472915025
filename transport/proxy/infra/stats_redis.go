package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"proxy-transport/transport/proxy/domain"

	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por destino.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackTargets bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackTargets(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackTargets = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "proxytransport:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := strings.TrimSpace(ev.Result)
	if field == "" {
		field = "unknown"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.StatusCode > 0 {
		pipe.HIncrBy(ctx, s.prefix+":status", strconv.Itoa(ev.StatusCode), 1)
	}

	if s.trackTargets {
		t := strings.TrimSpace(ev.Target)
		if t != "" {
			targetKey := s.prefix + ":target:" + t
			pipe.HIncrBy(ctx, targetKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, targetKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// TotalKey é o hash cumulativo (resultado -> contagem).
func (s *RedisStatsStore) TotalKey() string { return s.prefix + ":total" }

// Totals lê o hash cumulativo.
func (s *RedisStatsStore) Totals(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	raw, err := s.rdb.HGetAll(ctx, s.TotalKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stats field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}
