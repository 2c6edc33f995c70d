package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
if count >= limit then
  local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
  return {0, tonumber(oldest[2])}
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return {1, 0}
`

var slidingWindowLua = redis.NewScript(slidingWindowScript)

// Redis is a Limiter whose buckets are sorted sets scored by attempt time in
// milliseconds. Prune, count and insert run in one script so concurrent
// callers sharing a bucket cannot both pass a nearly full window.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis-backed limiter. Keys are written as
// <prefix>:<action>:<identifier>.
func NewRedis(client redis.UniversalClient, prefix string, now func() time.Time) *Redis {
	if prefix == "" {
		prefix = "rl"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{redis: client, prefix: prefix, now: now}
}

// Allow implements Limiter.
func (r *Redis) Allow(ctx context.Context, action, identifier string, rule Rule) error {
	if !rule.valid() {
		return ErrInvalidRule
	}

	nowMs := r.now().UnixMilli()
	windowMs := rule.Window.Milliseconds()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowLua.Run(
		ctx,
		r.redis,
		[]string{r.prefix + ":" + bucketKey(action, identifier)},
		nowMs,
		windowMs,
		rule.MaxAttempts,
		member,
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}
	if res[0] == 1 {
		return nil
	}

	waitMs := res[1] + windowMs - nowMs
	return newLimitError(action, time.Duration(waitMs)*time.Millisecond)
}
