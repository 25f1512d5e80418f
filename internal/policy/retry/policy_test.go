package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weapply/jobharvest/internal/jobsearch"
)

func transientErr() error {
	return &jobsearch.Error{Kind: jobsearch.KindServerError, StatusCode: 503}
}

func TestDecideRetriesTransientUntilBound(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second})

	d0 := p.Decide(0, transientErr())
	require.True(t, d0.Retry)
	assert.Positive(t, d0.Delay)

	d1 := p.Decide(1, transientErr())
	require.True(t, d1.Retry)

	// Attempt index 2 is the third and final attempt.
	d2 := p.Decide(2, transientErr())
	assert.False(t, d2.Retry)
	assert.Zero(t, d2.Delay)
}

func TestDecideNeverRetriesPermanent(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxAttempts: 5})

	notFound := &jobsearch.Error{Kind: jobsearch.KindNotFound, StatusCode: 404}
	d := p.Decide(0, notFound)
	assert.False(t, d.Retry)
	assert.Zero(t, d.Delay)

	parse := &jobsearch.Error{Kind: jobsearch.KindParse}
	assert.False(t, p.Decide(0, parse).Retry)
}

func TestDecideNeverRetriesCancellation(t *testing.T) {
	t.Parallel()

	p := New(Config{MaxAttempts: 5})
	assert.False(t, p.Decide(0, context.Canceled).Retry)
}

func TestDecideNilError(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	d := p.Decide(0, nil)
	assert.False(t, d.Retry)
}

func TestBackoffGrowsAndClamps(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	maxDelay := 400 * time.Millisecond
	p := New(Config{MaxAttempts: 10, BaseDelay: base, MaxDelay: maxDelay})

	// Jitter randomizes the top half, so bounds are [delay/2, delay].
	for attempt, want := range []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond, // clamped
	} {
		d := p.Decide(attempt, transientErr())
		require.True(t, d.Retry, "attempt %d", attempt)
		assert.GreaterOrEqual(t, d.Delay, want/2, "attempt %d", attempt)
		assert.LessOrEqual(t, d.Delay, want, "attempt %d", attempt)
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	assert.Equal(t, 3, p.MaxAttempts())
}

func TestWaitHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, Decision{Retry: true, Delay: time.Minute})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWaitZeroDelayReturnsImmediately(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, Wait(context.Background(), Decision{}))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
