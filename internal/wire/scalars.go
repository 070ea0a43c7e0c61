package wire

import "fmt"

// ScalarAdapter converts a custom scalar between its Go value and its JSON
// value. Either direction may be nil, in which case values pass through.
type ScalarAdapter struct {
	Encode func(v any) (any, error)
	Decode func(v any) (any, error)
}

// Scalars maps scalar type names (e.g. "DateTime") to adapters.
type Scalars map[string]ScalarAdapter

// Encode converts a Go value of scalar type typeName into a JSON value.
// Lists are converted element-wise.
func (s Scalars) Encode(typeName string, v any) (any, error) {
	a, ok := s[typeName]
	if !ok || a.Encode == nil {
		return v, nil
	}
	return s.apply(typeName, v, a.Encode)
}

// Decode converts a JSON value of scalar type typeName into its Go value.
// Lists are converted element-wise.
func (s Scalars) Decode(typeName string, v any) (any, error) {
	a, ok := s[typeName]
	if !ok || a.Decode == nil {
		return v, nil
	}
	return s.apply(typeName, v, a.Decode)
}

func (s Scalars) apply(typeName string, v any, fn func(any) (any, error)) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			conv, err := s.apply(typeName, item, fn)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		conv, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("wire: scalar %s: %w", typeName, err)
		}
		return conv, nil
	}
}
