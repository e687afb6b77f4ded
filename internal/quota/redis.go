package quota

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"media-dispatcher/pkg/models"
)

var _ Tracker = &RedisTracker{}

// admitScript purges expired members, then adds one member when the set is below the limit.
// KEYS[1] ledger key; ARGV: now ms, purge cutoff ms, window ms, limit, member.
var admitScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count < tonumber(ARGV[4]) then
  redis.call('ZADD', key, ARGV[1], ARGV[5])
  redis.call('PEXPIRE', key, ARGV[3])
  return 1
end
return 0
`)

// RedisTracker keeps quota state in one sorted set per user so several processes share it
type RedisTracker struct {
	client    *redis.Client
	settings  Settings
	keyPrefix string
	logger    zerolog.Logger
}

// NewRedisTracker creates a tracker on an existing client
func NewRedisTracker(client *redis.Client, keyPrefix string, settings Settings) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = "quota:"
	}
	return &RedisTracker{
		client:    client,
		settings:  settings.withDefaults(),
		keyPrefix: keyPrefix,
		logger:    zerolog.New(os.Stdout).With().Timestamp().Str("component", "quota").Logger(),
	}
}

// DialRedis connects to addr and returns a tracker once the server answers
func DialRedis(ctx context.Context, addr, password, keyPrefix string, settings Settings) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return NewRedisTracker(client, keyPrefix, settings), nil
}

func (t *RedisTracker) key(user models.UserID) string {
	return t.keyPrefix + strconv.FormatInt(int64(user), 10)
}

// Admit implements Tracker
func (t *RedisTracker) Admit(ctx context.Context, user models.UserID, now time.Time) (bool, error) {
	admitted, err := admitScript.Run(ctx, t.client, []string{t.key(user)},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(now.Add(-t.settings.Window).UnixMilli(), 10),
		strconv.FormatInt(t.settings.Window.Milliseconds(), 10),
		strconv.Itoa(t.settings.Limit),
		uuid.New().String(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run admit script for user %d: %w", user, err)
	}

	if admitted == 0 {
		t.logger.Debug().Int64("user_id", int64(user)).Msg("Quota exceeded")
		return false, nil
	}
	return true, nil
}

// Usage implements Tracker
func (t *RedisTracker) Usage(ctx context.Context, user models.UserID, now time.Time) (Usage, error) {
	key := t.key(user)
	minimum := strconv.FormatInt(now.Add(-t.settings.Window).UnixMilli(), 10)

	entries, err := t.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: "(" + minimum,
		Max: "+inf",
	}).Result()
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read quota for user %d: %w", user, err)
	}

	u := Usage{Count: len(entries), Limit: t.settings.Limit, ResetAt: now}
	if len(entries) > 0 {
		u.ResetAt = time.UnixMilli(int64(entries[0].Score)).Add(t.settings.Window)
	}
	return u, nil
}

// Close closes the redis client
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
