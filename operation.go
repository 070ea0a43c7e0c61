package graphcall

import (
	"encoding/json"
	"fmt"

	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/language"
)

// Mapper converts the data map of a response into the caller's value. Custom
// scalars can be decoded with scalars.Decode.
type Mapper[T any] func(data map[string]any, scalars Scalars) (T, error)

// Operation is a parsed, immutable operation bound to its variables and to
// the mapper producing T.
type Operation[T any] struct {
	op *interceptor.Operation
}

// OperationOption configures NewQuery and NewMutation.
type OperationOption func(*operationConfig)

type operationConfig struct {
	name string
	vars []Variable
}

// WithOperationName selects the named operation of a multi-operation document.
func WithOperationName(name string) OperationOption {
	return func(c *operationConfig) { c.name = name }
}

// WithVariable binds a variable. Bindings keep the order they were given in.
// Binding the same name again replaces the value in place.
func WithVariable(name string, value any) OperationOption {
	return func(c *operationConfig) {
		for i := range c.vars {
			if c.vars[i].Name == name {
				c.vars[i].Value = value
				return
			}
		}
		c.vars = append(c.vars, Variable{Name: name, Value: value})
	}
}

// NewQuery parses document and selects a query operation. A nil mapper
// decodes T from the data map through encoding/json.
func NewQuery[T any](document string, mapper Mapper[T], opts ...OperationOption) (*Operation[T], error) {
	return newOperation(language.Query, document, mapper, opts)
}

// NewMutation parses document and selects a mutation operation.
func NewMutation[T any](document string, mapper Mapper[T], opts ...OperationOption) (*Operation[T], error) {
	return newOperation(language.Mutation, document, mapper, opts)
}

func newOperation[T any](typ language.Operation, document string, mapper Mapper[T], opts []OperationOption) (*Operation[T], error) {
	var cfg operationConfig
	for _, o := range opts {
		o(&cfg)
	}
	doc, err := language.ParseQuery(document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	def, err := language.SelectOperation(doc, cfg.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	if def.Operation != typ {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", ErrInvalidOperation, def.Name, def.Operation, typ)
	}
	if err := checkVariables(def, cfg.vars); err != nil {
		return nil, err
	}
	if mapper == nil {
		mapper = decodeJSON[T]
	}
	return &Operation[T]{op: &interceptor.Operation{
		Name:       def.Name,
		Type:       def.Operation,
		Query:      document,
		Document:   doc,
		Definition: def,
		Variables:  cfg.vars,
		Map: func(data map[string]any, scalars Scalars) (any, error) {
			return mapper(data, scalars)
		},
	}}, nil
}

func checkVariables(def *language.OperationDefinition, vars []Variable) error {
	given := make(map[string]bool, len(vars))
	for _, v := range vars {
		if def.VariableDefinitions.ForName(v.Name) == nil {
			return fmt.Errorf("%w: variable $%s is not declared", ErrInvalidOperation, v.Name)
		}
		given[v.Name] = true
	}
	for _, vd := range def.VariableDefinitions {
		if vd.Type.NonNull && vd.DefaultValue == nil && !given[vd.Variable] {
			return fmt.Errorf("%w: variable $%s of type %s is required", ErrInvalidOperation, vd.Variable, vd.Type)
		}
	}
	return nil
}

func decodeJSON[T any](data map[string]any, _ Scalars) (T, error) {
	var out T
	if m, ok := any(&out).(*map[string]any); ok {
		*m = data
		return out, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(b, &out)
	return out, err
}

// Name is the operation name; empty for anonymous operations.
func (o *Operation[T]) Name() string { return o.op.Name }

// Type is "query" or "mutation".
func (o *Operation[T]) Type() string { return string(o.op.Type) }

// Document is the document text the operation was parsed from.
func (o *Operation[T]) Document() string { return o.op.Query }

// Variables returns a copy of the variable bindings.
func (o *Operation[T]) Variables() []Variable {
	return append([]Variable(nil), o.op.Variables...)
}

// CacheKey is the key of the operation's root record in the normalized cache.
func (o *Operation[T]) CacheKey() string { return o.op.RootKey() }
