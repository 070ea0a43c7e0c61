package normalize

import (
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/record"
)

// Read reconstructs the data of plan from store. It returns the keys of every
// record consulted, or a *MissError for the first missing record or field.
// Each record is loaded at most once per Read.
func Read(plan Plan, store record.Store) (map[string]any, []string, error) {
	data, recs, err := ReadRecords(plan, store)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, len(recs))
	for i, rec := range recs {
		keys[i] = rec.Key
	}
	return data, keys, nil
}

// ReadRecords is Read returning the consulted records in the versions the data
// was built from.
func ReadRecords(plan Plan, store record.Store) (map[string]any, []record.Record, error) {
	r := &reader{plan: plan, store: store, seen: map[string]record.Record{}}
	data, err := r.object(plan.RootKey, plan.Operation.SelectionSet, plan.rootTypename())
	if err != nil {
		return nil, nil, err
	}
	recs := make([]record.Record, len(r.order))
	for i, k := range r.order {
		recs[i] = r.seen[k]
	}
	return data, recs, nil
}

type reader struct {
	plan  Plan
	store record.Store
	seen  map[string]record.Record
	order []string
}

func (r *reader) load(key string) (record.Record, bool) {
	if rec, ok := r.seen[key]; ok {
		return rec, true
	}
	rec, ok := r.store.Read([]string{key})[key]
	if !ok {
		return record.Record{}, false
	}
	r.seen[key] = rec
	r.order = append(r.order, key)
	return rec, true
}

func (r *reader) object(key string, sel language.SelectionSet, typename string) (map[string]any, error) {
	rec, ok := r.load(key)
	if !ok {
		return nil, &MissError{Key: key}
	}
	if tn, ok := rec.Fields["__typename"].(string); ok {
		typename = tn
	}
	out := map[string]any{}
	for _, sf := range collect(r.plan, sel, typename, false, nil) {
		f := sf.field
		fk := fieldKey(r.plan, f)
		value, ok := rec.Field(fk)
		if !ok {
			if sf.lenient {
				continue
			}
			return nil, &MissError{Key: key, Field: fk}
		}
		if len(f.SelectionSet) == 0 {
			out[responseKey(f)] = record.CopyValue(value)
			continue
		}
		v, err := r.value(key, fk, f.SelectionSet, value)
		if err != nil {
			return nil, err
		}
		out[responseKey(f)] = v
	}
	return out, nil
}

func (r *reader) value(key, fk string, sel language.SelectionSet, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case record.Reference:
		return r.object(v.Key, sel, "")
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := r.value(key, fk, sel, item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, &MissError{Key: key, Field: fk}
	}
}
