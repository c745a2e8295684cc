package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carvectf/canary/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	addr := config.RedisAddress{Host: mr.Host(), Port: mustAtoi(t, mr.Port())}
	return New(addr), mr
}

func mustAtoi(t *testing.T, s string) uint16 {
	t.Helper()
	var n uint16
	for _, c := range s {
		n = n*10 + uint16(c-'0')
	}
	return n
}

func TestClient_Health_ReportsReachable(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()
	defer c.Close()

	assert.NoError(t, c.Health(context.Background()))
}

func TestClient_Health_ReportsUnreachableAfterClose(t *testing.T) {
	c, mr := newTestClient(t)
	defer c.Close()
	mr.Close()

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogUnavailable)
}

func TestClient_Append_WritesOneEntry(t *testing.T) {
	c, mr := newTestClient(t)
	defer mr.Close()
	defer c.Close()

	id, err := c.Append(context.Background(), "CarveCTF", "http-example", "team1", 1_700_000_000_000, Fields{
		Result: "1", Team: "team1", Box: "web", Message: "ok",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	verify := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer verify.Close()
	n, err := verify.XLen(context.Background(), streamKey("CarveCTF", "http-example", "team1")).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestClient_Append_RetriesThenFailsWhenStoreGoneForGood(t *testing.T) {
	c, mr := newTestClient(t)
	defer c.Close()
	mr.Close() // store unreachable for every attempt

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	_, err := c.Append(ctx, "CarveCTF", "icmp-example", "team1", 1_700_000_000_000, Fields{
		Result: "0", Team: "team1", Box: "web", Message: "no reply",
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogUnavailable)
	// three retries on the 100ms/400ms/1.6s schedule take at least ~2s.
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
}

func TestStreamKey_Format(t *testing.T) {
	assert.Equal(t, "CarveCTF:http-example:team1", streamKey("CarveCTF", "http-example", "team1"))
}
