package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tutordesk/corekit/internal/common"
)

// MemoryStore is an in-process Store used by tests and local development.
// Subscriptions are push-based: every committed write fans out the new
// snapshot to the document's subscribers.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	subs        map[string][]*memSub
	nextSub     int
}

type memSub struct {
	id         int
	key        string
	ch         chan Document
	stop       chan struct{}
	onSnapshot func(Document)
	onError    func(error)
	once       sync.Once
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Document),
		subs:        make(map[string][]*memSub),
	}
}

func subKey(collection, id string) string {
	return collection + "/" + id
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return deepCopy(doc), nil
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		m.collections[collection] = coll
	}
	stored := deepCopy(doc)
	coll[id] = stored
	subs := append([]*memSub(nil), m.subs[subKey(collection, id)]...)
	m.mu.Unlock()

	for _, s := range subs {
		s.publish(deepCopy(stored))
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	doc, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return common.ErrorNotFound
	}
	merged := deepCopy(doc)
	for k, v := range fields {
		merged[k] = v
	}
	m.collections[collection][id] = merged
	subs := append([]*memSub(nil), m.subs[subKey(collection, id)]...)
	m.mu.Unlock()

	for _, s := range subs {
		s.publish(deepCopy(merged))
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	var result []Document
	for _, doc := range m.collections[collection] {
		if matches(doc, q.Filters) {
			result = append(result, deepCopy(doc))
		}
	}
	m.mu.Unlock()

	if q.OrderBy != "" {
		sort.SliceStable(result, func(i, j int) bool {
			less := compareField(result[i][q.OrderBy], result[j][q.OrderBy])
			if q.Descending {
				return !less
			}
			return less
		})
	}
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (m *MemoryStore) Subscribe(collection, id string, onSnapshot func(Document), onError func(error)) Unsubscribe {
	sub := &memSub{
		key:        subKey(collection, id),
		ch:         make(chan Document, 1),
		stop:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onError:    onError,
	}

	m.mu.Lock()
	m.nextSub++
	sub.id = m.nextSub
	m.subs[sub.key] = append(m.subs[sub.key], sub)
	current, exists := m.collections[collection][id]
	if exists {
		current = deepCopy(current)
	}
	m.mu.Unlock()

	go sub.pump()

	if exists {
		sub.publish(current)
	}

	return func() {
		sub.once.Do(func() {
			m.mu.Lock()
			list := m.subs[sub.key]
			for i, s := range list {
				if s.id == sub.id {
					m.subs[sub.key] = append(list[:i], list[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
			close(sub.stop)
		})
	}
}

// publish hands the snapshot to the pump, replacing any undelivered one.
// Coalescing keeps last-snapshot-wins semantics under write bursts.
func (s *memSub) publish(doc Document) {
	for {
		select {
		case <-s.stop:
			return
		case s.ch <- doc:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *memSub) pump() {
	for {
		select {
		case <-s.stop:
			return
		case doc := <-s.ch:
			s.onSnapshot(doc)
		}
	}
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if asString(doc[f.Field]) != asString(f.Value) {
			return false
		}
	}
	return true
}

func compareField(a, b any) bool {
	return asString(a) < asString(b)
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func deepCopy(doc Document) Document {
	cp, err := Marshal(doc)
	if err != nil {
		// a Document that survived Set is always JSON-encodable
		return doc
	}
	return cp
}
