package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "app")

	mock.ExpectSet("app:greeting", []byte("hello"), time.Minute).SetVal("OK")
	require.NoError(t, c.Set(ctx, "greeting", "hello", time.Minute))

	mock.ExpectGet("app:greeting").SetVal("hello")
	var s string
	require.NoError(t, c.Get(ctx, "greeting", &s))
	assert.Equal(t, "hello", s)

	mock.ExpectGet("app:counts").SetVal(`{"a":2}`)
	var m map[string]int
	require.NoError(t, c.Get(ctx, "counts", &m))
	assert.Equal(t, 2, m["a"])

	mock.ExpectGet("app:gone").RedisNil()
	assert.ErrorIs(t, c.Get(ctx, "gone", &s), ErrCacheMiss)

	mock.ExpectUnlink("app:a", "app:b").SetVal(2)
	require.NoError(t, c.Delete(ctx, "a", "b"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheLock(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheFromClient(db, "")

	mock.ExpectSetNX("job", "locked", 5*time.Second).SetVal(true)
	ok, err := c.TryLock(ctx, "job", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectDel("job").SetVal(1)
	require.NoError(t, c.Unlock(ctx, "job"))

	mock.ExpectDel("job").SetVal(0)
	assert.ErrorIs(t, c.Unlock(ctx, "job"), ErrNotLocked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisOptions(t *testing.T) {
	cfg := defaultRedisConfig()
	WithRedisEndpoint("", "secret", 3)(&cfg)
	WithRedisPrefix("")(&cfg)
	WithRedisPingTimeout(0)(&cfg)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Empty(t, cfg.Prefix)
	assert.Equal(t, 5*time.Second, cfg.PingTimeout)
}
