// Package upload validates file batches and drives per-file uploads through
// the blob store, tracking display state for each file. The partial-result
// contract of UploadBatch is load-bearing: on failure the caller receives
// the exact set of paths already uploaded in this call and must use it for
// rollback instead of recomputing paths itself.
package upload

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tutordesk/corekit/internal/blob"
	"github.com/tutordesk/corekit/internal/common"
	"github.com/tutordesk/corekit/internal/config"
)

// maxNameLen bounds the original file name kept in the storage path and
// shown in the dashboard.
const maxNameLen = 180

// File is one user-provided file to validate and upload.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusUploading Status = "uploading"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
)

// Task is the ephemeral per-file upload state held for the lifetime of one
// batch and surfaced to the caller for display.
type Task struct {
	Name            string
	Status          Status
	ProgressPercent int
	ErrorMessage    string
}

// Coordinator validates and uploads one batch at a time. It is not safe for
// concurrent use; each transaction gets its own coordinator.
type Coordinator struct {
	store      blob.Store
	limits     config.UploadLimits
	pathPrefix string

	mu     sync.Mutex
	tasks  []Task
	onTask func(Task)
}

func NewCoordinator(store blob.Store, limits config.UploadLimits, pathPrefix string) *Coordinator {
	return &Coordinator{store: store, limits: limits, pathPrefix: pathPrefix}
}

// OnTask registers a callback invoked on every task state change.
func (c *Coordinator) OnTask(fn func(Task)) {
	c.onTask = fn
}

// Tasks returns a snapshot of the batch's per-file state.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

// Validate checks one file against the context limits. Validation never
// touches the blob store.
func (c *Coordinator) Validate(f File) error {
	if len(f.Name) > maxNameLen {
		return fmt.Errorf("%w: %q", common.ErrorNameTooLong, f.Name[:32]+"...")
	}
	if int64(len(f.Data)) > c.limits.MaxBytes {
		return fmt.Errorf("%w: %s (%d bytes, limit %d)", common.ErrorFileTooLarge, f.Name, len(f.Data), c.limits.MaxBytes)
	}
	if !slices.Contains(c.limits.AllowedTypes, f.MIMEType) {
		return fmt.Errorf("%w: %s (%s)", common.ErrorUnsupportedType, f.Name, f.MIMEType)
	}
	return nil
}

// ValidateBatch checks the file count and every file up front.
func (c *Coordinator) ValidateBatch(files []File) error {
	if len(files) > c.limits.MaxFiles {
		return fmt.Errorf("%w: %d (limit %d)", common.ErrorTooManyFiles, len(files), c.limits.MaxFiles)
	}
	for _, f := range files {
		if err := c.Validate(f); err != nil {
			return err
		}
	}
	return nil
}

// UploadBatch validates the whole batch, then uploads the files
// sequentially, updating task state at discrete checkpoints. On the first
// failing file it stops, marks that file failed and returns the error
// together with the paths uploaded so far, so the caller can roll them
// back. A validation failure returns before any blob I/O.
func (c *Coordinator) UploadBatch(ctx context.Context, files []File) ([]blob.Locator, []string, error) {
	if err := c.ValidateBatch(files); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.tasks = make([]Task, len(files))
	for i, f := range files {
		c.tasks[i] = Task{Name: f.Name, Status: StatusQueued}
	}
	c.mu.Unlock()

	locators := make([]blob.Locator, 0, len(files))
	uploaded := make([]string, 0, len(files))

	for i, f := range files {
		c.setTask(i, StatusUploading, 50, "")

		path := blob.StoragePath(c.pathPrefix, f.Name)
		loc, err := c.store.Put(ctx, path, f.Data, f.MIMEType)
		if err != nil {
			msg := fmt.Sprintf("upload of %s failed", f.Name)
			c.setTask(i, StatusError, 0, msg)
			return locators, uploaded, fmt.Errorf("%w: %s: %w", common.ErrorUploadFailed, f.Name, err)
		}
		c.setTask(i, StatusUploading, 90, "")

		loc.Name = f.Name
		locators = append(locators, loc)
		uploaded = append(uploaded, loc.Path)

		c.setTask(i, StatusSuccess, 100, "")
	}

	return locators, uploaded, nil
}

func (c *Coordinator) setTask(i int, status Status, progress int, msg string) {
	c.mu.Lock()
	c.tasks[i].Status = status
	c.tasks[i].ProgressPercent = progress
	c.tasks[i].ErrorMessage = msg
	t := c.tasks[i]
	fn := c.onTask
	c.mu.Unlock()

	if fn != nil {
		fn(t)
	}
}
