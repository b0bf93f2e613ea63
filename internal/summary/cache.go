package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"kkn/internal/week"
)

// Cache is a read-through store of built summaries. Every (team, week) has a
// generation that Invalidate bumps. Set stores a summary only while the
// generation read before the build is still current, so a build that raced
// a write is dropped instead of cached.
type Cache interface {
	Get(ctx context.Context, team string, wk week.Label) (*Summary, bool)
	// Generation returns the current generation. ok is false when the cache
	// cannot tell, and the caller must not Set.
	Generation(ctx context.Context, team string, wk week.Label) (gen int64, ok bool)
	Set(ctx context.Context, s Summary, gen int64)
	Invalidate(ctx context.Context, team string, labels []week.Label) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string, week.Label) (*Summary, bool) { return nil, false }

func (NopCache) Generation(context.Context, string, week.Label) (int64, bool) { return 0, false }

func (NopCache) Set(context.Context, Summary, int64) {}

func (NopCache) Invalidate(context.Context, string, []week.Label) error { return nil }

var errStaleGeneration = errors.New("summary generation moved")

// RedisCache stores summaries as JSON next to a generation counter.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	log    *logrus.Entry
}

// NewRedisCache caches summaries for at most ttl.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		log:    logrus.WithField("component", "summary-cache"),
	}
}

// Key is the Redis key of a team's week.
func Key(team string, wk week.Label) string {
	return fmt.Sprintf("kkn:summary:%s:%s", team, wk)
}

// GenerationKey is the Redis key of the counter bumped on every invalidation
// of a team's week. It has no expiry.
func GenerationKey(team string, wk week.Label) string {
	return fmt.Sprintf("kkn:summary-gen:%s:%s", team, wk)
}

// Get returns a cached summary. Redis failures are treated as misses.
func (c *RedisCache) Get(ctx context.Context, team string, wk week.Label) (*Summary, bool) {
	raw, err := c.client.Get(ctx, Key(team, wk)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("summary cache read failed")
		}
		return nil, false
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		c.log.WithError(err).Warn("summary cache entry corrupt")
		return nil, false
	}
	return &s, true
}

// Generation reads the counter of a team's week. A missing counter is 0.
func (c *RedisCache) Generation(ctx context.Context, team string, wk week.Label) (int64, bool) {
	gen, err := c.client.Get(ctx, GenerationKey(team, wk)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.WithError(err).Warn("summary generation read failed")
		return 0, false
	}
	return gen, true
}

// Set stores s until the configured ttl or the next midnight, whichever comes
// first, since the implicit absences of a summary change when the day rolls.
// Nothing is stored when the generation moved past gen.
func (c *RedisCache) Set(ctx context.Context, s Summary, gen int64) {
	wk, err := week.Parse(s.Week)
	if err != nil {
		return
	}
	ttl := effectiveTTL(c.ttl, c.now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	genKey := GenerationKey(s.Team, wk)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, Key(s.Team, wk), raw, ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		c.log.WithFields(logrus.Fields{"team": s.Team, "week": s.Week}).Debug("summary changed during build, not cached")
	default:
		c.log.WithError(err).Warn("summary cache write failed")
	}
}

// Invalidate bumps the generation of team for labels and deletes their
// entries in one transaction.
func (c *RedisCache) Invalidate(ctx context.Context, team string, labels []week.Label) error {
	if len(labels) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, l := range labels {
			p.Incr(ctx, GenerationKey(team, l))
			p.Del(ctx, Key(team, l))
		}
		return nil
	})
	return err
}

func effectiveTTL(ttl time.Duration, now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	if untilMidnight := midnight.Sub(now); untilMidnight < ttl {
		return untilMidnight
	}
	return ttl
}
