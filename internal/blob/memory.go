package blob

import (
	"context"
	"fmt"
	"sync"

	"github.com/tutordesk/corekit/internal/common"
)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-process Store used by tests and local development.
// PutHook and DeleteHook, when set, run before the operation and may return
// an error to simulate store failures.
type MemoryStore struct {
	mu       sync.Mutex
	objects  map[string]memObject
	maxBytes int64

	PutHook    func(path string) error
	DeleteHook func(path string) error
}

func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject), maxBytes: maxBytes}
}

func (m *MemoryStore) Put(ctx context.Context, path string, data []byte, contentType string) (Locator, error) {
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	if m.PutHook != nil {
		if err := m.PutHook(path); err != nil {
			return Locator{}, err
		}
	}
	if m.maxBytes > 0 && int64(len(data)) > m.maxBytes {
		return Locator{}, fmt.Errorf("%w: %d bytes", common.ErrorFileTooLarge, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[path] = memObject{data: cp, contentType: contentType}

	return Locator{
		Path:      path,
		URL:       "mem://" + path,
		MIMEType:  contentType,
		SizeBytes: int64(len(data)),
	}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.DeleteHook != nil {
		if err := m.DeleteHook(path); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

// Exists reports whether a blob is stored at path.
func (m *MemoryStore) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
