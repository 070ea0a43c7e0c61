package record

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore is an in-process Store. Records are kept in a concurrent map and
// replaced wholesale on write, so a reader always holds one consistent version
// of a record.
type MemoryStore struct {
	records *xsync.MapOf[string, Record]

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

type subscription struct {
	keys   map[string]struct{}
	notify func(changed []string)
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: xsync.NewMapOf[string, Record](),
		subs:    make(map[uint64]*subscription),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Read(keys []string) map[string]Record {
	out := make(map[string]Record, len(keys))
	for _, k := range keys {
		if r, ok := s.records.Load(k); ok {
			out[k] = r
		}
	}
	return out
}

func (s *MemoryStore) Write(records []Record) []string {
	changed := make(map[string]struct{})
	for _, rec := range records {
		if rec.Key == "" {
			continue
		}
		s.records.Compute(rec.Key, func(old Record, loaded bool) (Record, bool) {
			merged, dirty := merge(old, loaded, rec)
			if dirty {
				changed[rec.Key] = struct{}{}
			}
			return merged, false
		})
	}
	keys := sortedKeys(changed)
	s.publish(keys)
	return keys
}

func (s *MemoryStore) Subscribe(keys []string, notify func(changed []string)) func() {
	sub := &subscription{keys: make(map[string]struct{}, len(keys)), notify: notify}
	for _, k := range keys {
		sub.keys[k] = struct{}{}
	}
	id := s.nextID.Add(1)
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *MemoryStore) Remove(keys ...string) {
	removed := make(map[string]struct{})
	for _, k := range keys {
		if _, ok := s.records.LoadAndDelete(k); ok {
			removed[k] = struct{}{}
		}
	}
	s.publish(sortedKeys(removed))
}

func (s *MemoryStore) Clear() {
	all := make(map[string]struct{})
	s.records.Range(func(k string, _ Record) bool {
		all[k] = struct{}{}
		return true
	})
	s.records.Clear()
	s.publish(sortedKeys(all))
}

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	return s.records.Size()
}

func (s *MemoryStore) publish(changed []string) {
	if len(changed) == 0 {
		return
	}
	type delivery struct {
		notify func([]string)
		keys   []string
	}
	var out []delivery
	s.mu.RLock()
	for _, sub := range s.subs {
		var hit []string
		for _, k := range changed {
			if _, ok := sub.keys[k]; ok {
				hit = append(hit, k)
			}
		}
		if len(hit) > 0 {
			out = append(out, delivery{notify: sub.notify, keys: hit})
		}
	}
	s.mu.RUnlock()
	for _, d := range out {
		d.notify(d.keys)
	}
}

func merge(old Record, loaded bool, in Record) (Record, bool) {
	if !loaded {
		fields := make(map[string]any, len(in.Fields))
		for k, v := range in.Fields {
			fields[k] = CopyValue(v)
		}
		return Record{Key: in.Key, Fields: fields}, true
	}
	dirty := false
	fields := make(map[string]any, len(old.Fields)+len(in.Fields))
	for k, v := range old.Fields {
		fields[k] = v
	}
	for k, v := range in.Fields {
		prev, ok := old.Fields[k]
		if !ok || !reflect.DeepEqual(prev, v) {
			dirty = true
		}
		fields[k] = CopyValue(v)
	}
	if !dirty {
		return old, false
	}
	return Record{Key: old.Key, Fields: fields}, true
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
