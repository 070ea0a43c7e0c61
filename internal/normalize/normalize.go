// Package normalize converts operation response data into normalized records
// and reconstructs response data from those records.
//
// Both directions walk the operation's selection set: fields are addressed by
// their response key (alias) in the data and by their field key (name plus
// resolved arguments) in a record. Objects that carry __typename and id are
// stored under a shared identity key; all other objects are stored under a
// path below their parent.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/language"
)

// Plan identifies what to normalize or read: one operation of a parsed document,
// its resolved variables and the key of its root record.
type Plan struct {
	Document  *language.QueryDocument
	Operation *language.OperationDefinition
	Variables map[string]any
	RootKey   string
}

func (p Plan) rootTypename() string {
	switch p.Operation.Operation {
	case language.Mutation:
		return "Mutation"
	case language.Subscription:
		return "Subscription"
	default:
		return "Query"
	}
}

// FieldError describes one field of the response that could not be normalized.
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Error collects every field that failed to normalize. Records for the other
// fields are still produced.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return "normalize: " + strings.Join(parts, "; ")
}

// ErrMiss is matched by every *MissError.
var ErrMiss = errors.New("normalize: cache miss")

// MissError names the first record or field missing from the store.
type MissError struct {
	Key   string
	Field string
}

func (e *MissError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("normalize: cache miss: record %q", e.Key)
	}
	return fmt.Sprintf("normalize: cache miss: record %q field %q", e.Key, e.Field)
}

func (e *MissError) Is(target error) bool { return target == ErrMiss }

// selectedField is one field selection after fragments are flattened.
type selectedField struct {
	field *language.Field
	// lenient marks fields from fragments whose type condition could not be
	// confirmed; their absence is not an error.
	lenient bool
}

// collect flattens sel into its field selections for an object of typename.
func collect(plan Plan, sel language.SelectionSet, typename string, lenient bool, out []selectedField) []selectedField {
	for _, s := range sel {
		switch s := s.(type) {
		case *language.Field:
			if language.Skipped(s.Directives, plan.Variables) {
				continue
			}
			out = append(out, selectedField{field: s, lenient: lenient})
		case *language.InlineFragment:
			if language.Skipped(s.Directives, plan.Variables) {
				continue
			}
			out = collect(plan, s.SelectionSet, typename, lenient || !matches(s.TypeCondition, typename), out)
		case *language.FragmentSpread:
			if language.Skipped(s.Directives, plan.Variables) {
				continue
			}
			def := plan.Document.Fragments.ForName(s.Name)
			if def == nil {
				continue
			}
			out = collect(plan, def.SelectionSet, typename, lenient || !matches(def.TypeCondition, typename), out)
		}
	}
	return out
}

// matches reports whether a fragment type condition certainly applies. Without
// a schema, abstract conditions cannot be resolved, so only an exact
// __typename match or an unknown typename count as certain.
func matches(condition, typename string) bool {
	return condition == "" || typename == "" || condition == typename
}

func responseKey(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

func fieldKey(plan Plan, f *language.Field) string {
	if len(f.Arguments) == 0 {
		return f.Name
	}
	args := make(map[string]any, len(f.Arguments))
	for _, a := range f.Arguments {
		v, err := a.Value.Value(plan.Variables)
		if err != nil {
			v = a.Value.Raw
		}
		args[a.Name] = v
	}
	return cachekey.Field(f.Name, args)
}
