package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/utils"
)

// RateLimiter guards generation starts per user.
type RateLimiter interface {
	Check(ctx context.Context, userID string) error
}

// redisRateLimiter counts generations per user in a fixed window. The key
// expires with the window, so an unavailable counter never locks a user out
// longer than one window.
type redisRateLimiter struct {
	log    *logger.Logger
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRateLimiter(log *logger.Logger, rdb *redis.Client) RateLimiter {
	limit := utils.GetEnvAsInt("RATELIMIT_GENERATIONS_PER_DAY", 120, log)
	windowHours := utils.GetEnvAsInt("RATELIMIT_WINDOW_HOURS", 24, log)
	return &redisRateLimiter{
		log:    log.With("service", "RateLimiter"),
		rdb:    rdb,
		limit:  limit,
		window: time.Duration(windowHours) * time.Hour,
	}
}

func (r *redisRateLimiter) Check(ctx context.Context, userID string) error {
	if r.rdb == nil {
		return nil
	}
	key := fmt.Sprintf("ratelimit:generations:%s", userID)

	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: losing the counter should not block lesson authoring.
		r.log.Warn("rate limit check unavailable", "error", err.Error())
		return nil
	}
	if count == 1 {
		if err := r.rdb.Expire(ctx, key, r.window).Err(); err != nil {
			r.log.Warn("failed to set rate limit window", "error", err.Error())
		}
	}
	if int(count) > r.limit {
		ttl, err := r.rdb.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = r.window
		}
		return &RateLimitExceededError{
			UserID: userID,
			Limit:  r.limit,
			Reset:  time.Now().Add(ttl),
		}
	}
	return nil
}
