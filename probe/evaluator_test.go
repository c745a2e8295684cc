package probe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/carvectf/canary/config"
)

func TestNewEvaluator_SelectsByVariant(t *testing.T) {
	assert.IsType(t, &HttpEvaluator{}, NewEvaluator(config.HttpSpec{}))
	assert.IsType(t, &IcmpEvaluator{}, NewEvaluator(config.IcmpSpec{}))
	assert.IsType(t, &SshEvaluator{}, NewEvaluator(config.SshSpec{}))
	assert.IsType(t, &ShellEvaluator{}, NewEvaluator(config.ShellSpec{}))
}

func TestWithTimeout_ReturnsTimeoutOutcomeOnBudgetExhaustion(t *testing.T) {
	out := withTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) Outcome {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // simulate a slow evaluator ignoring cancellation
		return Outcome{Success: true, Message: "too slow"}
	})
	assert.False(t, out.Success)
	assert.Equal(t, "timeout", out.Message)
}

func TestWithTimeout_UsesDefaultWhenUnset(t *testing.T) {
	start := time.Now()
	out := withTimeout(context.Background(), 0, func(ctx context.Context) Outcome {
		return Outcome{Success: true, Message: "fast"}
	})
	assert.Less(t, time.Since(start), DefaultTimeout)
	assert.True(t, out.Success)
}
