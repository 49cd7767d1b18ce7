package matchmaking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard is a SessionGuard backed by Redis, for deployments running
// more than one server process. Reservations carry a TTL so a crashed
// process cannot strand a player outside matchmaking forever.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

// reserveScript reserves the key only if absent and always returns the
// reservation in effect after the call.
var reserveScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("GET", KEYS[1])
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return ARGV[1]
`)

// releaseScript deletes the key only if it still holds the expected
// session id, which keeps Release idempotent.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// reassignScript swaps the reservation only if it still points at the
// provisional session id.
var reassignScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 0
`)

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) key(playerID string) string {
	return fmt.Sprintf("guard:player:%s", playerID)
}

func (g *RedisGuard) Reserve(ctx context.Context, playerID, sessionID string) (string, error) {
	result, err := reserveScript.Run(ctx, g.rdb, []string{g.key(playerID)}, sessionID, g.ttl.Milliseconds()).Text()
	if err != nil {
		return "", fmt.Errorf("failed to reserve player %s: %v", playerID, err)
	}
	return result, nil
}

func (g *RedisGuard) Reassign(ctx context.Context, playerID, fromID, toID string) error {
	if err := reassignScript.Run(ctx, g.rdb, []string{g.key(playerID)}, fromID, toID, g.ttl.Milliseconds()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to reassign player %s: %v", playerID, err)
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, playerID, sessionID string) error {
	if err := releaseScript.Run(ctx, g.rdb, []string{g.key(playerID)}, sessionID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release player %s: %v", playerID, err)
	}
	return nil
}

func (g *RedisGuard) Lookup(ctx context.Context, playerID string) (string, error) {
	val, err := g.rdb.Get(ctx, g.key(playerID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up player %s: %v", playerID, err)
	}
	return val, nil
}
