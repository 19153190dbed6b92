package sequence

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCounterConcurrentUniqueness(t *testing.T) {
	addr := os.Getenv("POS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set POS_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("POS_TEST_REDIS_PASSWORD"),
	})
	counter := NewRedisCounterFromClient(client)
	t.Cleanup(func() {
		_ = counter.Close()
	})
	require.NoError(t, counter.Ping(ctx))

	name := fmt.Sprintf("it_seq_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = client.Del(context.Background(), redisKeyPrefix+name).Err()
	})

	gen := NewGenerator(counter, name, 500)
	first, err := gen.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(500), first)

	const n = 100
	var mu sync.Mutex
	seen := make(map[int64]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := gen.Next(ctx)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[v] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
}
