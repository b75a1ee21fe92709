package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/docstore/storetest"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	s := New(rdb.NewClient(&rdb.Options{Addr: "127.0.0.1:0"}), "", nil)
	defer s.Close()
	assert.Equal(t, "hellodoc:docs:users", s.key("users"))

	s2 := New(rdb.NewClient(&rdb.Options{Addr: "127.0.0.1:0"}), "app1", nil)
	defer s2.Close()
	assert.Equal(t, "app1:docs:orders", s2.key("orders"))
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), docstore.Config{DSN: "://bad"})
	assert.Error(t, err)
}

// openTest requiere HELLODOC_TEST_REDIS_ADDR (integración).
func openTest(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("HELLODOC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HELLODOC_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	prefix := fmt.Sprintf("hellodoc-test-%d", time.Now().UnixNano())
	s, err := Open(ctx, docstore.Config{Addr: addr, Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.flush(ctx)
		_ = s.Close()
	})
	return s
}

func TestUpdate_ConcurrentDocsInSameCollection(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	const n = 32
	for i := 0; i < n; i++ {
		require.NoError(t, s.Set(ctx, "counters", fmt.Sprint(i), map[string]any{"v": 0.0}))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 1; j <= 5; j++ {
				assert.NoError(t, s.Update(ctx, "counters", fmt.Sprint(i), map[string]any{"v": float64(j), "meta.by": i}))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		d, err := s.Get(ctx, "counters", fmt.Sprint(i))
		require.NoError(t, err)
		assert.Equal(t, 5.0, d.Data["v"])
		assert.Equal(t, map[string]any{"by": float64(i)}, d.Data["meta"])
	}
	assert.ErrorIs(t, s.Update(ctx, "counters", "ghost", map[string]any{"v": 1}), docstore.ErrNotFound)
}

func TestConformance(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) docstore.Store {
		require.NoError(t, s.flush(ctx))
		return s
	})
}
