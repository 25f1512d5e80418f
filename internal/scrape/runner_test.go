package scrape

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/model"
	"github.com/weapply/jobharvest/internal/policy/ratelimit"
	"github.com/weapply/jobharvest/internal/storage"
)

// fakeAPI implements Source over a scripted listings sequence and a per-slug
// detail table.
type fakeAPI struct {
	listings fakeListings
	details  map[string]*jobsearch.JobPayload
	failing  map[string]error

	inFlight atomic.Int64
	peak     atomic.Int64
}

func newFakeAPI(slugs ...string) *fakeAPI {
	api := &fakeAPI{
		details: make(map[string]*jobsearch.JobPayload),
		failing: make(map[string]error),
	}
	var items []jobsearch.ListingItem
	for i, slug := range slugs {
		id := i + 1
		items = append(items, jobsearch.ListingItem{ID: id, Title: "t", Slug: slug})
		api.details[slug] = &jobsearch.JobPayload{ID: id, Title: "Job " + slug, Slug: slug}
	}
	api.listings = fakeListings{pages: map[int]jobsearch.ListingsPage{1: {Items: items}}}
	return api
}

func (f *fakeAPI) FetchListings(ctx context.Context, cursor jobsearch.Cursor) (jobsearch.ListingsPage, error) {
	return f.listings.FetchListings(ctx, cursor)
}

func (f *fakeAPI) FetchDetail(_ context.Context, slug string) (*jobsearch.JobPayload, error) {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	defer f.inFlight.Add(-1)

	if err := f.failing[slug]; err != nil {
		return nil, err
	}
	payload, ok := f.details[slug]
	if !ok {
		return nil, &jobsearch.Error{Kind: jobsearch.KindNotFound, StatusCode: 404, Slug: slug}
	}
	return payload, nil
}

// fakeSink records upserts and optionally fails specific job ids.
type fakeSink struct {
	mu      sync.Mutex
	records []model.Record
	failIDs map[int]bool
}

func (s *fakeSink) UpsertJob(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[rec.Job.ID] {
		return &storage.PersistError{JobID: rec.Job.ID, Err: fmt.Errorf("constraint violation")}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeSink) persisted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeExporter records what was mirrored.
type fakeExporter struct {
	mu      sync.Mutex
	records []model.Record
	flushed bool
}

func (e *fakeExporter) Add(rec model.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
}

func (e *fakeExporter) Flush() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushed = true
	return []string{"jobs.json"}, nil
}

func newTestRunner(api *fakeAPI, sink *fakeSink, exporter RecordExporter, concurrency int) *Runner {
	limiter := ratelimit.New(ratelimit.Config{Concurrency: concurrency})
	return NewRunner(api, limiter, fastPolicy(), sink, exporter, nil, Config{Concurrency: concurrency}, nil)
}

func TestRunPersistsEveryListedJob(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a", "b", "c", "d")
	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 3)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Pages)
	assert.Equal(t, int64(4), summary.Attempted)
	assert.Equal(t, int64(4), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, 4, sink.persisted())
}

// Per-item failures are counted and skipped; every other record still lands.
func TestRunSurvivesPartialFailures(t *testing.T) {
	t.Parallel()

	slugs := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	api := newFakeAPI(slugs...)
	api.failing["c"] = &jobsearch.Error{Kind: jobsearch.KindNotFound, StatusCode: 404, Slug: "c"}
	api.failing["g"] = &jobsearch.Error{Kind: jobsearch.KindPermanent, StatusCode: 403, Slug: "g"}

	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 4)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err, "item failures must never abort the run")

	assert.Equal(t, int64(10), summary.Attempted)
	assert.Equal(t, int64(8), summary.Succeeded)
	assert.Equal(t, int64(2), summary.Failed)
	assert.Equal(t, int64(2), summary.Failures[FailPermanentClient])
	assert.Equal(t, 8, sink.persisted())
}

func TestRunCountsPersistFailures(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a", "b", "c")
	sink := &fakeSink{failIDs: map[int]bool{2: true}}
	runner := newTestRunner(api, sink, nil, 2)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(1), summary.Failures[FailPersist])
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	t.Parallel()

	slugs := make([]string, 20)
	for i := range slugs {
		slugs[i] = fmt.Sprintf("job-%d", i)
	}
	api := newFakeAPI(slugs...)
	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 3)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, api.peak.Load(), int64(3))
	assert.Equal(t, 20, sink.persisted())
}

func TestRunSkipsDuplicateSlugs(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a", "b")
	// The same slug appears again later in the listings, as happens when
	// postings shift between pages mid-walk.
	page := api.listings.pages[1]
	page.Items = append(page.Items, jobsearch.ListingItem{ID: 1, Title: "t", Slug: "a"})
	api.listings.pages[1] = page

	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 1)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Attempted)
	assert.Equal(t, int64(1), summary.Duplicates)
	assert.Equal(t, 2, sink.persisted())
}

func TestRunReturnsFatalPaginationError(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a")
	api.listings.errs = map[int]error{
		1: &jobsearch.Error{Kind: jobsearch.KindServerError, StatusCode: 500},
	}

	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 1)

	_, err := runner.Run(context.Background())
	var fatal *FatalPaginationError
	require.ErrorAs(t, err, &fatal)
}

func TestRunSlugsSkipsListingsWalk(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a", "b", "c")
	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 2)

	summary, err := runner.RunSlugs(context.Background(), []string{"a", "c"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), summary.Pages)
	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Empty(t, api.listings.cursors)
}

func TestRunMirrorsCommittedRecordsToExporter(t *testing.T) {
	t.Parallel()

	api := newFakeAPI("a", "b", "c")
	api.failing["b"] = &jobsearch.Error{Kind: jobsearch.KindNotFound, StatusCode: 404, Slug: "b"}

	sink := &fakeSink{}
	exporter := &fakeExporter{}
	runner := newTestRunner(api, sink, exporter, 2)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	assert.Len(t, exporter.records, 2, "only committed records are exported")
	assert.True(t, exporter.flushed)
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := newFakeAPI("a", "b")
	sink := &fakeSink{}
	runner := newTestRunner(api, sink, nil, 2)

	summary, err := runner.Run(ctx)
	require.NoError(t, err, "cancellation is an orderly stop, not a failure")
	assert.Equal(t, int64(0), summary.Succeeded)
}

// Back-to-back runs with their own seen stores must both refresh the
// database; scheduled harvesting depends on it.
func TestSuccessiveRunsEachPersistWithOwnSeenStore(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}

	for run := 0; run < 2; run++ {
		api := newFakeAPI("a", "b", "c")
		runner := newTestRunner(api, sink, nil, 2)

		summary, err := runner.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), summary.Succeeded, "run %d", run)
		assert.Equal(t, int64(0), summary.Duplicates, "run %d", run)
	}

	assert.Equal(t, 6, sink.persisted())
}

// cancelingAPI cancels the run context while a chosen slug's detail fetch
// is in flight.
type cancelingAPI struct {
	*fakeAPI
	cancel context.CancelFunc
	target string
}

func (c *cancelingAPI) FetchDetail(ctx context.Context, slug string) (*jobsearch.JobPayload, error) {
	if slug == c.target {
		c.cancel()
		return nil, ctx.Err()
	}
	return c.fakeAPI.FetchDetail(ctx, slug)
}

func TestRunSummaryReconcilesAfterMidFetchCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &cancelingAPI{fakeAPI: newFakeAPI("a", "b", "c"), cancel: cancel, target: "b"}
	sink := &fakeSink{}
	limiter := ratelimit.New(ratelimit.Config{Concurrency: 1})
	runner := NewRunner(api, limiter, fastPolicy(), sink, nil, nil, Config{Concurrency: 1}, nil)

	summary, err := runner.RunSlugs(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Aborted)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, summary.Attempted, summary.Succeeded+summary.Failed+summary.Aborted,
		"every attempted item lands in exactly one outcome column")
}

func TestClassifyFailure(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FailPersist, ClassifyFailure(&storage.PersistError{JobID: 1, Err: fmt.Errorf("x")}))
	assert.Equal(t, FailPermanentClient, ClassifyFailure(&jobsearch.Error{Kind: jobsearch.KindNotFound}))
	assert.Equal(t, FailParse, ClassifyFailure(&jobsearch.Error{Kind: jobsearch.KindParse}))
	assert.Equal(t, FailTransientNetwork, ClassifyFailure(&jobsearch.Error{Kind: jobsearch.KindTimeout}))
}
