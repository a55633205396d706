// Package cache keeps providers' weekly windows in Redis. Sessions are never
// cached; they are regenerated from the windows on every read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/sessionbook/services/booking-service/internal/model"
)

const (
	keyPrefix = "sb:schedule:"
	genPrefix = "sb:schedule:gen:"
)

const DefaultTTL = 10 * time.Minute

// Backend is the system of record for schedules.
type Backend interface {
	Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	Replace(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error
}

// ScheduleCache is a read-through cache in front of a Backend. Redis
// failures degrade to direct loads.
type ScheduleCache struct {
	rdb     redis.Cmdable
	next    Backend
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScheduleCache returns a cache over next. A nil rdb disables caching.
func NewScheduleCache(rdb redis.Cmdable, next Backend, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *ScheduleCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleCache{rdb: rdb, next: next, ttl: ttl, logger: logger, metrics: m}
}

// storeIfCurrent writes the entry only while the provider's generation still
// matches the one read before the backend load. A missing generation is "0".
var storeIfCurrent = redis.NewScript(`
local gen = redis.call("GET", KEYS[1])
if gen == false then
  gen = "0"
end
if gen ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

type cachedWindow struct {
	DayOfWeek       int `json:"d"`
	StartMinute     int `json:"s"`
	EndMinute       int `json:"e"`
	SessionDuration int `json:"n"`
}

func (c *ScheduleCache) Windows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	if c.rdb == nil {
		return c.next.Windows(ctx, providerID)
	}

	raw, err := c.rdb.Get(ctx, keyPrefix+providerID).Bytes()
	switch {
	case err == nil:
		var cached []cachedWindow
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			c.metrics.ObserveCache(true)
			return fromCached(cached), nil
		}
		c.logger.Warn("schedule cache entry unreadable", "provider_id", providerID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("schedule cache get failed", "provider_id", providerID, "err", err)
	}
	c.metrics.ObserveCache(false)

	gen, genErr := c.rdb.Get(ctx, genPrefix+providerID).Result()
	switch {
	case errors.Is(genErr, redis.Nil):
		gen, genErr = "0", nil
	case genErr != nil:
		c.logger.Warn("schedule cache generation read failed", "provider_id", providerID, "err", genErr)
	}

	windows, err := c.next.Windows(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return windows, nil
	}
	body, err := json.Marshal(toCached(windows))
	if err != nil {
		return windows, nil
	}
	keys := []string{genPrefix + providerID, keyPrefix + providerID}
	stored, err := storeIfCurrent.Run(ctx, c.rdb, keys, gen, body, c.ttl.Milliseconds()).Int()
	switch {
	case err != nil:
		c.logger.Warn("schedule cache set failed", "provider_id", providerID, "err", err)
	case stored == 0:
		c.logger.Debug("schedule changed during load, entry not cached", "provider_id", providerID)
	}
	return windows, nil
}

// Replace writes through to the backend and then drops the cached entry. A
// failed invalidation is logged; the entry then expires with its TTL.
func (c *ScheduleCache) Replace(ctx context.Context, providerID string, windows []model.AvailabilityWindow) error {
	if err := c.next.Replace(ctx, providerID, windows); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, providerID); err != nil {
		c.logger.Error("schedule cache invalidate failed", "provider_id", providerID, "err", err)
	}
	return nil
}

// Invalidate bumps the provider's generation and drops the entry, so loads
// that started before the call cannot repopulate it. Call it after every
// schedule write.
func (c *ScheduleCache) Invalidate(ctx context.Context, providerID string) error {
	if c.rdb == nil {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genPrefix+providerID)
		pipe.Del(ctx, keyPrefix+providerID)
		return nil
	})
	return err
}

func toCached(ws []model.AvailabilityWindow) []cachedWindow {
	out := make([]cachedWindow, 0, len(ws))
	for _, w := range ws {
		out = append(out, cachedWindow{DayOfWeek: w.DayOfWeek, StartMinute: w.StartMinute, EndMinute: w.EndMinute, SessionDuration: w.SessionDuration})
	}
	return out
}

func fromCached(cs []cachedWindow) []model.AvailabilityWindow {
	if len(cs) == 0 {
		return nil
	}
	out := make([]model.AvailabilityWindow, 0, len(cs))
	for _, c := range cs {
		out = append(out, model.AvailabilityWindow{DayOfWeek: c.DayOfWeek, StartMinute: c.StartMinute, EndMinute: c.EndMinute, SessionDuration: c.SessionDuration})
	}
	return out
}
