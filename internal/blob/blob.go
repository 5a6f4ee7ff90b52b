// Package blob stores opaque byte payloads addressed by path in an
// S3-compatible object store. The adapter performs no retries; partial
// failure recovery belongs to the callers.
package blob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Locator references a stored blob. A locator is never referenced by more
// than one committed record: storage paths are salted with the upload date
// and a random id, so two uploads of the same file never collide.
type Locator struct {
	Path      string `json:"path"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// Store is the minimal blob-store surface used by the upload layers.
type Store interface {
	// Put uploads data under path and returns the resulting locator.
	Put(ctx context.Context, path string, data []byte, contentType string) (Locator, error)

	// Delete removes the blob at path. Deleting an already-absent path is
	// not an error; rollback relies on this being idempotent.
	Delete(ctx context.Context, path string) error
}

// StoragePath builds a collision-free object key for an uploaded file,
// salted with the current date and a random id.
func StoragePath(prefix, name string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s-%s", prefix, d.Year(), int(d.Month()), d.Day(), uuid.New(), sanitizeName(name))
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		return "file"
	}
	return name
}
