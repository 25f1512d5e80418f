// Package storage defines the persistence contract for normalized records.
package storage

import (
	"context"
	"fmt"

	"github.com/weapply/jobharvest/internal/model"
)

// Sink persists one normalized record atomically. Implementations must make
// repeated upserts of the same record idempotent and must fully replace
// child collections.
type Sink interface {
	UpsertJob(ctx context.Context, rec model.Record) error
}

// PersistError marks a storage-layer rejection. The transaction has been
// rolled back; the record is skipped, not the run.
type PersistError struct {
	JobID int
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist job %d: %v", e.JobID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
