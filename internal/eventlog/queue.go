package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tutordesk/corekit/internal/filex"
)

// Queue is the bounded durable fallback tier: a JSONL file, one entry per
// line, oldest first. Once capacity is reached the oldest entry is evicted
// to make room. All mutations hold the mutex and rewrite the file before
// returning, so a crash loses at most the mutation in flight.
type Queue struct {
	path     string
	capacity int

	mu      sync.Mutex
	entries []*Entry
}

// defaultCapacity backs a missing or non-positive capacity setting. The
// queue must never be zero-sized: Dispatch relies on it absorbing entries
// unconditionally.
const defaultCapacity = 200

// OpenQueue loads the queue file at path, creating its directory if
// needed. A capacity below 1 falls back to defaultCapacity. Undecodable
// lines are dropped.
func OpenQueue(path string, capacity int) (*Queue, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	if capacity < 1 {
		capacity = defaultCapacity
	}
	q := &Queue{path: path, capacity: capacity}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("read queue %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		q.entries = append(q.entries, &e)
	}

	if len(q.entries) > capacity {
		q.entries = q.entries[len(q.entries)-capacity:]
	}
	return q, nil
}

// Append adds an entry, evicting the oldest one when the queue is full.
func (q *Queue) Append(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.capacity {
		q.entries = q.entries[len(q.entries)-q.capacity+1:]
	}
	q.entries = append(q.entries, e)
	return q.persistLocked()
}

// Drain removes and returns all queued entries, oldest first.
func (q *Queue) Drain() ([]*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.entries
	q.entries = nil
	if err := q.persistLocked(); err != nil {
		q.entries = drained
		return nil, err
	}
	return drained, nil
}

// Requeue puts entries back at the front, preserving their order relative
// to each other and to anything appended meanwhile.
func (q *Queue) Requeue(entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]*Entry, 0, len(entries)+len(q.entries))
	merged = append(merged, entries...)
	merged = append(merged, q.entries...)
	if len(merged) > q.capacity {
		merged = merged[len(merged)-q.capacity:]
	}
	q.entries = merged
	return q.persistLocked()
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) persistLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range q.entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	if err := os.WriteFile(q.path, buf.Bytes(), 0o660); err != nil {
		return fmt.Errorf("persist queue %s: %w", q.path, err)
	}
	return nil
}
