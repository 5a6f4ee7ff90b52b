// Package storetx orchestrates the "upload N blobs, then write one owning
// record" shape as an explicit saga: there is no cross-store transaction
// between the blob store and the document database, so the commit step is
// compensated by best-effort deletion of the uploaded blobs when it fails.
package storetx

import (
	"context"
	"fmt"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/docstore"
	"github.com/tutordesk/corekit/internal/logging"
	"github.com/tutordesk/corekit/internal/upload"
)

// BuildRecord turns the uploaded locators into the owning record. It must
// not perform I/O.
type BuildRecord func(locators []blob.Locator) (collection, id string, doc docstore.Document, err error)

type Runner struct {
	blobs  blob.Store
	docs   docstore.Store
	logger logging.Logger
}

func NewRunner(blobs blob.Store, docs docstore.Store, logger logging.Logger) *Runner {
	return &Runner{blobs: blobs, docs: docs, logger: logger}
}

// Run validates and uploads files through the coordinator, then commits the
// record built from the resulting locators.
//
// Failure handling:
//   - validation failure: returned as-is, no I/O happened;
//   - upload failure: the paths the coordinator reports as already
//     uploaded are rolled back, then the upload error is returned;
//   - commit failure: every uploaded path is rolled back, then the
//     original commit error is returned wrapped in ErrorCommitFailed.
//
// Rollback is synchronous-before-return and best-effort: delete failures
// are logged, never raised, and never mask the primary error.
func (r *Runner) Run(ctx context.Context, co *upload.Coordinator, files []upload.File, build BuildRecord) (string, error) {
	locators, uploaded, err := co.UploadBatch(ctx, files)
	if err != nil {
		Rollback(ctx, r.blobs, r.logger, uploaded)
		return "", err
	}

	collection, id, doc, err := build(locators)
	if err != nil {
		Rollback(ctx, r.blobs, r.logger, uploaded)
		return "", fmt.Errorf("build record: %w", err)
	}

	if err := r.docs.Set(ctx, collection, id, doc); err != nil {
		Rollback(ctx, r.blobs, r.logger, uploaded)
		return "", fmt.Errorf("%w: %s/%s: %w", common.ErrorCommitFailed, collection, id, err)
	}

	return id, nil
}

// Rollback deletes the given blob paths, logging failures instead of
// returning them. It runs detached from the caller's cancellation so a
// failed transaction still gets its compensation attempt, and it relies on
// the store's idempotent delete so repeated attempts are safe.
func Rollback(ctx context.Context, store blob.Store, logger logging.Logger, paths []string) {
	if len(paths) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, p := range paths {
		if err := store.Delete(ctx, p); err != nil {
			logger.Error(ctx, "rollback delete failed", "path", p, "error", err)
		}
	}
}
