package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	addr := os.Getenv("POLL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLL_TEST_REDIS_ADDR not set")
	}
	return Config{Addr: addr, DB: 15}
}

func TestNewClient_EmptyAddr(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestAcquireLease_NilClient(t *testing.T) {
	_, err := AcquireLease(context.Background(), nil, "", time.Second, nil)
	assert.ErrorIs(t, err, ErrRedisNotAvailable)
}

func TestLease_SingleOwner(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testConfig(t))
	require.NoError(t, err)
	defer client.Close()

	name := "poll_session:lease:" + t.Name()
	first, err := AcquireLease(ctx, client, name, 3*time.Second, nil)
	require.NoError(t, err)

	_, err = AcquireLease(ctx, client, name, 3*time.Second, nil)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// 续约后锁仍然有效
	time.Sleep(1500 * time.Millisecond)
	_, err = AcquireLease(ctx, client, name, 3*time.Second, nil)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx))

	second, err := AcquireLease(ctx, client, name, 3*time.Second, nil)
	require.NoError(t, err)
	assert.NoError(t, second.Release(ctx))
}
