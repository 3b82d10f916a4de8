package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed lua/fixed_window.lua
var luaFixedWindow string

// Redis shares windows across API instances. The counter and its expiry are
// set in one script so a crash between them cannot leave an immortal key.
type Redis struct {
	rdb    redis.UniversalClient
	script *redis.Script
	limit  int
	window time.Duration
	prefix string
}

func NewRedis(rdb redis.UniversalClient, limit int, per time.Duration) *Redis {
	return &Redis{
		rdb:    rdb,
		script: redis.NewScript(luaFixedWindow),
		limit:  limit,
		window: per,
		prefix: "ratelimit",
	}
}

var _ Limiter = (*Redis)(nil)

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	n, err := r.script.Run(ctx, r.rdb, []string{r.key(key)}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return n <= int64(r.limit), nil
}

func (r *Redis) key(k string) string { return fmt.Sprintf("%s:{%s}", r.prefix, k) }
