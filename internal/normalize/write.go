package normalize

import (
	"fmt"
	"strconv"

	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/record"
)

// Normalize turns the data of an operation response into records. The root
// record is keyed plan.RootKey. When some fields cannot be normalized the
// records for the rest are still returned together with an *Error.
func Normalize(plan Plan, data map[string]any) ([]record.Record, error) {
	w := &writer{plan: plan, byKey: map[string]int{}}
	w.object(plan.RootKey, plan.rootTypename(), plan.Operation.SelectionSet, data, "data")
	if len(w.errs) > 0 {
		return w.records, &Error{Fields: w.errs}
	}
	return w.records, nil
}

type writer struct {
	plan    Plan
	records []record.Record
	byKey   map[string]int
	errs    []FieldError
}

func (w *writer) fields(key string) map[string]any {
	if i, ok := w.byKey[key]; ok {
		return w.records[i].Fields
	}
	w.byKey[key] = len(w.records)
	rec := record.New(key)
	w.records = append(w.records, rec)
	return rec.Fields
}

func (w *writer) fail(path, format string, args ...any) {
	w.errs = append(w.errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (w *writer) object(key, typename string, sel language.SelectionSet, data map[string]any, path string) {
	fields := w.fields(key)
	for _, sf := range collect(w.plan, sel, typename, false, nil) {
		f := sf.field
		rk := responseKey(f)
		fk := fieldKey(w.plan, f)
		fpath := path + "." + rk
		value, ok := data[rk]
		if !ok {
			if !sf.lenient {
				w.fail(fpath, "missing from response")
			}
			continue
		}
		if len(f.SelectionSet) == 0 {
			fields[fk] = record.CopyValue(value)
			continue
		}
		v, ok := w.value(key, []string{fk}, f.SelectionSet, value, fpath)
		if ok {
			fields[fk] = v
		}
	}
}

// value normalizes a composite field value at segments below parent.
func (w *writer) value(parent string, segments []string, sel language.SelectionSet, value any, path string) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case map[string]any:
		key := cachekey.Object(v)
		if key == "" {
			key = cachekey.Path(parent, segments...)
		}
		typename, _ := v["__typename"].(string)
		w.object(key, typename, sel, v, path)
		return record.Reference{Key: key}, true
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			idx := strconv.Itoa(i)
			n, ok := w.value(parent, append(append([]string(nil), segments...), idx), sel, item, path+"."+idx)
			if !ok {
				n = nil
			}
			out[i] = n
		}
		return out, true
	default:
		w.fail(path, "expected object or list, got %T", value)
		return nil, false
	}
}
