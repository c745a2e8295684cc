// Package eventlog implements the C4 event log client: an idempotent
// append to the shared append-only log (spec.md §4.4, §6), backed by
// Redis Streams.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/carvectf/canary/config"
)

// ErrLogUnavailable is returned when the connection to the store is down
// (spec.md §7 LogUnavailable).
var ErrLogUnavailable = errors.New("log store unavailable")

// Fields is the flat string map written per entry (spec.md §6).
type Fields struct {
	Result  string // "0" or "1"
	Team    string
	Box     string
	Message string
}

func (f Fields) toMap() map[string]interface{} {
	return map[string]interface{}{
		"result":  f.Result,
		"team":    f.Team,
		"box":     f.Box,
		"message": f.Message,
	}
}

// Client appends ScoringEvents to Redis Streams and reports store health.
// Canary uses only Append and Health; Subscribe is a reader-side concern
// modeled only as an interface note in spec.md §4.4.
type Client struct {
	rdb *redis.Client
}

// New dials the configured Redis endpoint. Dialing is lazy in go-redis;
// use Health to confirm reachability.
func New(addr config.RedisAddress) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", addr.Host, addr.Port),
			DB:   addr.DB,
		}),
	}
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health reports whether the store is reachable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}
	return nil
}

// streamKey builds "<competition>:<check>:<team>" (spec.md §3, §6).
func streamKey(competition, check, team string) string {
	return competition + ":" + check + ":" + team
}

// entryIDPrefix builds the Redis Stream ID Canary supplies; the store
// always assigns the "-<seq>" suffix (spec.md §3 EntryId, §6).
func entryIDPrefix(alignedTsMs int64) string {
	return fmt.Sprintf("%d-*", alignedTsMs)
}

// rawAppend performs one XADD attempt with no retry.
func (c *Client) rawAppend(ctx context.Context, competition, check, team string, alignedTsMs int64, fields Fields) (string, error) {
	key := streamKey(competition, check, team)
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		ID:     entryIDPrefix(alignedTsMs),
		Values: fields.toMap(),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLogUnavailable, err)
	}
	return id, nil
}

// Append writes one event, retrying transient LogUnavailable failures
// with the 100ms/400ms/1.6s backoff schedule of spec.md §4.4. After the
// final attempt fails, the caller (runner.CheckRunner) is responsible for
// incrementing the dropped-event counter; Append itself only reports the
// final error.
func (c *Client) Append(ctx context.Context, competition, check, team string, alignedTsMs int64, fields Fields) (string, error) {
	var entryID string
	policy := backoff.WithMaxRetries(newRetryPolicy(), 3)

	operation := func() error {
		id, err := c.rawAppend(ctx, competition, check, team, alignedTsMs, fields)
		if err != nil {
			return err
		}
		entryID = id
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return "", err
	}
	return entryID, nil
}

// newRetryPolicy produces the 100ms, 400ms, 1.6s exponential schedule
// spec.md §4.4 names literally.
func newRetryPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 4
	b.RandomizationFactor = 0
	b.MaxInterval = 1600 * time.Millisecond
	return b
}
