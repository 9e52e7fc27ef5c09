package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"video-rag/internal/config"
)

const keyPrefix = "video-rag:session:"

// values are "<state>:<questionKey>"
var (
	beginScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur == 'in_flight:' .. ARGV[1] or cur == 'completed:' .. ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], 'in_flight:' .. ARGV[1], 'PX', ARGV[2])
return 1
`)

	completeScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= 'in_flight:' .. ARGV[1] then
  return 0
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 then
  redis.call('SET', KEYS[1], 'completed:' .. ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[1], 'completed:' .. ARGV[1])
end
return 1
`)

	failScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= 'in_flight:' .. ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)
)

// RedisGuard shares session state across instances. Entries expire after ttl
// so a crashed instance cannot block a question forever.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Begin(ctx context.Context, sessionID, questionKey string) (bool, error) {
	key := keyPrefix + sessionID
	ok, err := g.client.SetNX(ctx, key, InFlight.String()+":"+questionKey, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim session %s: %w", sessionID, err)
	}
	if ok {
		return true, nil
	}
	n, err := beginScript.Run(ctx, g.client, []string{key}, questionKey, g.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to claim session %s: %w", sessionID, err)
	}
	if n == 0 {
		log.Debug().Str("session_id", sessionID).Str("question_key", questionKey).Msg("Duplicate generation suppressed")
	}
	return n == 1, nil
}

func (g *RedisGuard) Complete(ctx context.Context, sessionID, questionKey string) error {
	if err := completeScript.Run(ctx, g.client, []string{keyPrefix + sessionID}, questionKey).Err(); err != nil {
		return fmt.Errorf("failed to complete session %s: %w", sessionID, err)
	}
	return nil
}

func (g *RedisGuard) Fail(ctx context.Context, sessionID, questionKey string) error {
	if err := failScript.Run(ctx, g.client, []string{keyPrefix + sessionID}, questionKey).Err(); err != nil {
		return fmt.Errorf("failed to release session %s: %w", sessionID, err)
	}
	return nil
}

// Status returns the stored state and question key of a session.
func (g *RedisGuard) Status(ctx context.Context, sessionID string) (State, string, error) {
	v, err := g.client.Get(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return NotStarted, "", nil
	}
	if err != nil {
		return NotStarted, "", fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	state, key, _ := strings.Cut(v, ":")
	switch state {
	case InFlight.String():
		return InFlight, key, nil
	case Completed.String():
		return Completed, key, nil
	}
	return NotStarted, key, nil
}
