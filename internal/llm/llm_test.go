package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestLangChainCompleter_Fake(t *testing.T) {
	c := NewLangChainCompleter(fake.NewFakeLLM([]string{`{"qa_pairs":[]}`}))

	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "chunk"})
	require.NoError(t, err)
	assert.Equal(t, `{"qa_pairs":[]}`, out)
}

func TestLimited_PassesThrough(t *testing.T) {
	var calls atomic.Int32
	next := CompleterFunc(func(_ context.Context, p Prompt) (string, error) {
		calls.Add(1)
		return "echo:" + p.User, nil
	})

	c := Limited(next, NewRateLimiter(0, 1))
	for i := 0; i < 5; i++ {
		out, err := c.Complete(context.Background(), Prompt{User: "x"})
		require.NoError(t, err)
		assert.Equal(t, "echo:x", out)
	}
	assert.Equal(t, int32(5), calls.Load())
}

func TestLimited_RecordsRateLimit(t *testing.T) {
	limiter := NewRateLimiter(0, 1)
	limiter.cooldown = time.Hour

	next := CompleterFunc(func(context.Context, Prompt) (string, error) {
		return "", errors.Join(ErrRateLimited, errors.New("429"))
	})
	c := Limited(next, limiter)

	_, err := c.Complete(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrRateLimited)

	// The cooldown now blocks further calls until the context expires
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, Prompt{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiter_Throttles(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx), "second call within a second exceeds the bucket")
}
