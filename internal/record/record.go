// Package record holds normalized response records and the shared store they
// live in.
//
// A Record is a flat, field-keyed fragment of response data. Nested objects are
// stored as their own records and linked through Reference values, so one
// object fetched by several operations is stored once and every operation
// observes its latest fields.
package record

import "reflect"

// Reference links a record field to another record.
type Reference struct {
	Key string
}

// Record is an immutable set of field values addressed by Key. Field values are
// JSON scalars, References, or []any of those.
type Record struct {
	Key    string
	Fields map[string]any
}

// New returns a record with an empty field set.
func New(key string) Record {
	return Record{Key: key, Fields: map[string]any{}}
}

// Field returns the value stored for a field key.
func (r Record) Field(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// Store is the normalized cache shared by every call of a client.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use and apply
//     each record write atomically per key.
//   - Read returns the current version of every present key; absent keys are
//     omitted from the result.
//   - Write merges fields (last write wins per field) and returns the keys
//     whose contents changed.
//   - Subscribers are notified after a write completes, with the subset of
//     their keys that changed.
type Store interface {
	Read(keys []string) map[string]Record
	Write(records []Record) []string
	Subscribe(keys []string, notify func(changed []string)) (unsubscribe func())
	Remove(keys ...string)
	Clear()
}

// CopyValue returns v with every nested []any and map[string]any copied, so
// the result shares no mutable state with v.
func CopyValue(v any) any {
	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = CopyValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = CopyValue(item)
		}
		return out
	default:
		return v
	}
}

// Changed returns the keys of seen whose fields no longer hold the seen values
// in store, including records that are gone.
func Changed(store Store, seen []Record) []string {
	if len(seen) == 0 {
		return nil
	}
	keys := make([]string, len(seen))
	for i, rec := range seen {
		keys[i] = rec.Key
	}
	current := store.Read(keys)
	var out []string
	for _, rec := range seen {
		cur, ok := current[rec.Key]
		if !ok {
			out = append(out, rec.Key)
			continue
		}
		for k, v := range rec.Fields {
			if cv, ok := cur.Fields[k]; !ok || !reflect.DeepEqual(cv, v) {
				out = append(out, rec.Key)
				break
			}
		}
	}
	return out
}
