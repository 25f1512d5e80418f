package scrape

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/policy/ratelimit"
)

// fakeDetail fails the first failures[slug] calls for a slug, then succeeds.
type fakeDetail struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	failWith error
}

func newFakeDetail() *fakeDetail {
	return &fakeDetail{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		failWith: &jobsearch.Error{Kind: jobsearch.KindServerError, StatusCode: 503},
	}
}

func (f *fakeDetail) FetchDetail(_ context.Context, slug string) (*jobsearch.JobPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[slug]++
	if f.calls[slug] <= f.failures[slug] {
		return nil, f.failWith
	}
	return &jobsearch.JobPayload{ID: len(slug), Title: "t", Slug: slug}, nil
}

func openLimiter() *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{Concurrency: 4})
}

func TestFetchSucceedsFirstTry(t *testing.T) {
	t.Parallel()

	source := newFakeDetail()
	f := NewFetcher(source, openLimiter(), fastPolicy(), NewCounters(), nil)

	payload, attempts, err := f.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", payload.Slug)
	assert.Equal(t, 1, attempts)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	source := newFakeDetail()
	source.failures["abc"] = 1

	counters := NewCounters()
	f := NewFetcher(source, openLimiter(), fastPolicy(), counters, nil)

	payload, attempts, err := f.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), counters.Snapshot().Retries)
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()

	source := newFakeDetail()
	source.failures["abc"] = 100

	f := NewFetcher(source, openLimiter(), fastPolicy(), NewCounters(), nil)

	payload, attempts, err := f.Fetch(context.Background(), "abc")
	require.Error(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, 2, attempts) // MaxAttempts in fastPolicy

	var fe *jobsearch.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, jobsearch.KindServerError, fe.Kind)
}

func TestFetchDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	source := newFakeDetail()
	source.failures["gone"] = 100
	source.failWith = &jobsearch.Error{Kind: jobsearch.KindNotFound, StatusCode: 404, Slug: "gone"}

	f := NewFetcher(source, openLimiter(), fastPolicy(), NewCounters(), nil)

	_, attempts, err := f.Fetch(context.Background(), "gone")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, jobsearch.KindNotFound, jobsearch.KindOf(err))
}

func TestFetchReleasesPermitOnFailure(t *testing.T) {
	t.Parallel()

	source := newFakeDetail()
	source.failures["abc"] = 100

	limiter := ratelimit.New(ratelimit.Config{Concurrency: 1})
	f := NewFetcher(source, limiter, fastPolicy(), NewCounters(), nil)

	_, _, err := f.Fetch(context.Background(), "abc")
	require.Error(t, err)
	assert.Equal(t, 0, limiter.InFlight())

	// A second fetch must still be able to acquire the single permit.
	payload, _, err := f.Fetch(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", payload.Slug)
}
