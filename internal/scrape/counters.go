package scrape

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/weapply/jobharvest/internal/jobsearch"
	"github.com/weapply/jobharvest/internal/storage"
)

// FailureKind groups per-item failures for the run summary.
type FailureKind string

// Failure kinds reported in the summary, per the error taxonomy.
const (
	FailTransientNetwork FailureKind = "transient_network"
	FailPermanentClient  FailureKind = "permanent_client"
	FailParse            FailureKind = "parse"
	FailPersist          FailureKind = "persist"
)

// ClassifyFailure maps an item-boundary error onto its summary kind.
func ClassifyFailure(err error) FailureKind {
	var pe *storage.PersistError
	if errors.As(err, &pe) {
		return FailPersist
	}
	switch jobsearch.KindOf(err) {
	case jobsearch.KindNotFound, jobsearch.KindPermanent:
		return FailPermanentClient
	case jobsearch.KindParse:
		return FailParse
	default:
		return FailTransientNetwork
	}
}

// Counters is the run-local state shared across fetch workers. It is owned
// by the Runner and mutated only through atomic operations or the failure
// mutex; no other state is shared between workers.
type Counters struct {
	pages      atomic.Int64
	attempted  atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	aborted    atomic.Int64
	duplicates atomic.Int64
	retries    atomic.Int64

	mu       sync.Mutex
	failures map[FailureKind]int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{failures: make(map[FailureKind]int64)}
}

// PageConsumed records one listings page.
func (c *Counters) PageConsumed() { c.pages.Add(1) }

// Attempt records the start of one item's processing.
func (c *Counters) Attempt() { c.attempted.Add(1) }

// Success records one persisted record.
func (c *Counters) Success() { c.succeeded.Add(1) }

// Abort records an attempted item cut short by cancellation. It keeps the
// summary reconciled: attempted = succeeded + failed + aborted.
func (c *Counters) Abort() { c.aborted.Add(1) }

// Duplicate records an item skipped by the seen-slug guard.
func (c *Counters) Duplicate() { c.duplicates.Add(1) }

// Retries adds n retry attempts.
func (c *Counters) Retries(n int64) { c.retries.Add(n) }

// Failure records one failed item under its kind.
func (c *Counters) Failure(kind FailureKind) {
	c.failed.Add(1)
	c.mu.Lock()
	c.failures[kind]++
	c.mu.Unlock()
}

// Summary is an immutable snapshot of the counters.
type Summary struct {
	Pages      int64
	Attempted  int64
	Succeeded  int64
	Failed     int64
	Aborted    int64
	Duplicates int64
	Retries    int64
	Failures   map[FailureKind]int64
}

// Snapshot copies the current counter state.
func (c *Counters) Snapshot() Summary {
	c.mu.Lock()
	failures := make(map[FailureKind]int64, len(c.failures))
	for k, v := range c.failures {
		failures[k] = v
	}
	c.mu.Unlock()
	return Summary{
		Pages:      c.pages.Load(),
		Attempted:  c.attempted.Load(),
		Succeeded:  c.succeeded.Load(),
		Failed:     c.failed.Load(),
		Aborted:    c.aborted.Load(),
		Duplicates: c.duplicates.Load(),
		Retries:    c.retries.Load(),
		Failures:   failures,
	}
}

// FailureKinds lists the observed kinds in stable order for logging.
func (s Summary) FailureKinds() []FailureKind {
	kinds := make([]FailureKind, 0, len(s.Failures))
	for k := range s.Failures {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
