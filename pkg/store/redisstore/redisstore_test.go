package redisstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/pomodo/pkg/store"
	"github.com/harrisonrobin/pomodo/pkg/store/storetest"
)

// Integration-style test: runs only if POMODO_TEST_REDIS_ADDR is set.
func TestBackendIntegration(t *testing.T) {
	addr := os.Getenv("POMODO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POMODO_TEST_REDIS_ADDR not set; skipping integration test")
	}
	db := 0
	if v := os.Getenv("POMODO_TEST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}

	n := 0
	storetest.Run(t, func(t *testing.T) store.Backend {
		rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
		require.NoError(t, rdb.Ping(context.Background()).Err())
		n++
		// A fresh prefix per subtest keeps runs isolated without FLUSHDB.
		prefix := fmt.Sprintf("pomodo-test-%d-%d", time.Now().UnixNano(), n)
		b := New(rdb, prefix)
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := rdb.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				rdb.Del(ctx, keys...)
			}
			b.Close()
		})
		return b
	})
}
