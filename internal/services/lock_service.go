package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"checkin-system/internal/status"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CheckInLock serializes check-in submissions for one (user, session) pair
// across clients and instances.
type CheckInLock struct {
	Redis    *redis.Client
	ttl      time.Duration
	newToken func() string
}

func NewCheckInLock(redisClient *redis.Client, ttl time.Duration) *CheckInLock {
	return &CheckInLock{
		Redis:    redisClient,
		ttl:      ttl,
		newToken: uuid.NewString,
	}
}

func lockKey(userID, sessionID string) string {
	return fmt.Sprintf("checkin:lock:%s:%s", sessionID, userID)
}

// Acquire takes the lock or fails with status.ErrCheckInBusy. When Redis is
// unreachable the submission goes ahead unlocked and the unique index on
// attendance is the only guard.
func (l *CheckInLock) Acquire(ctx context.Context, userID, sessionID string) (func(), error) {
	key := lockKey(userID, sessionID)
	token := l.newToken()

	ok, err := l.Redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		slog.Warn("check-in lock unavailable, continuing without it", "key", key, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, status.ErrCheckInBusy
	}

	return func() {
		if err := releaseScript.Run(context.Background(), l.Redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
			slog.Error("Failed to release check-in lock", "key", key, "error", err)
		}
	}, nil
}
