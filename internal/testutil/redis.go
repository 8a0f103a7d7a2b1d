package testutil

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// resolveRedis returns the first reachable address among REDIS_ADDR, a
// started container, or the usual local ports.
func resolveRedis() (string, error) {
	redisOnce.Do(func() {
		var candidates []string
		switch {
		case envOr("REDIS_ADDR", "") != "":
			candidates = []string{envOr("REDIS_ADDR", "")}
		case useContainers():
			addr, err := redisContainer.start(redisSpec())
			if err != nil {
				redisErr = err
				return
			}
			candidates = []string{addr}
		default:
			candidates = []string{"localhost:56379", "localhost:6379", "redis:6379"}
		}

		for _, addr := range candidates {
			if redisErr = pingRedis(addr); redisErr == nil {
				redisAddr = addr
				return
			}
		}
	})
	return redisAddr, redisErr
}

func pingRedis(addr string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close() //nolint:errcheck // probe client

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// SetupTestRedis returns a client on a flushed database (TEST_REDIS_DB,
// default 1) and closes it when the test ends.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, err := resolveRedis()
	if err != nil {
		unavailable(t, envBool("TEST_REQUIRE_REDIS"), "redis", err)
	}

	db := 1
	if n, convErr := strconv.Atoi(envOr("TEST_REDIS_DB", "1")); convErr == nil && n >= 0 {
		db = n
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	t.Cleanup(func() {
		if closeErr := client.Close(); closeErr != nil {
			t.Logf("close redis client: %v", closeErr)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if flushErr := client.FlushDB(ctx).Err(); flushErr != nil {
		unavailable(t, envBool("TEST_REQUIRE_REDIS"), "redis", flushErr)
	}
	return client
}
