package interceptor

import (
	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/normalize"
	"github.com/hanpama/graphcall/internal/wire"
)

// Mapper converts response data into the caller's value.
type Mapper func(data map[string]any, scalars wire.Scalars) (any, error)

// Operation is the untyped, immutable description of one operation.
type Operation struct {
	Name       string
	Type       language.Operation
	Query      string
	Document   *language.QueryDocument
	Definition *language.OperationDefinition
	Variables  []cachekey.Variable
	// Map converts data; nil leaves the data map as the response value.
	Map Mapper
}

// IsMutation reports whether the operation is a mutation.
func (o *Operation) IsMutation() bool {
	return o.Type == language.Mutation
}

// RootKey is the cache key of the operation's root record. Declared defaults
// count, so omitting a variable and binding its default give the same key.
func (o *Operation) RootKey() string {
	return cachekey.RootMap(o.Name, o.VariableMap())
}

// VariableMap returns the variables as a map, completed with declared defaults.
func (o *Operation) VariableMap() map[string]any {
	m := make(map[string]any, len(o.Variables))
	for _, v := range o.Variables {
		m[v.Name] = v.Value
	}
	return language.ResolveVariables(o.Definition, m)
}

// Plan describes the operation to the normalizer.
func (o *Operation) Plan() normalize.Plan {
	return normalize.Plan{
		Document:  o.Document,
		Operation: o.Definition,
		Variables: o.VariableMap(),
		RootKey:   o.RootKey(),
	}
}

func (o *Operation) mapData(data map[string]any, scalars wire.Scalars) (any, error) {
	if o.Map == nil {
		return data, nil
	}
	return o.Map(data, scalars)
}
