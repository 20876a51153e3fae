package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{rdb: rdb, ttl: ttl}
}

// AcquireOnce tries to acquire a dedup lock for a given scope + id.
// Returns true if this is the FIRST time processing, false on a duplicate.
func (d *Deduper) AcquireOnce(ctx context.Context, scope, id string) bool {
	key := fmt.Sprintf("dedup:%s:%s", scope, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？为了安全：当 redis 不可用时，不阻止处理，返回 true
		return true
	}
	return ok
}
