package language

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var (
	// ErrNoOperation indicates the document has no operation with the requested name.
	ErrNoOperation = errors.New("language: operation not found")

	// ErrAmbiguousOperation indicates an unnamed lookup in a document with several operations.
	ErrAmbiguousOperation = errors.New("language: operation name required for multi-operation document")
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SelectOperation picks the operation to run from doc. An empty name selects the
// only operation of the document.
func SelectOperation(doc *QueryDocument, name string) (*OperationDefinition, error) {
	if name == "" {
		switch len(doc.Operations) {
		case 0:
			return nil, ErrNoOperation
		case 1:
			return doc.Operations[0], nil
		default:
			return nil, ErrAmbiguousOperation
		}
	}
	op := doc.Operations.ForName(name)
	if op == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoOperation, name)
	}
	return op, nil
}

// VariableTypes maps each declared variable to the named type at the bottom of
// its type reference ("[DateTime!]!" -> "DateTime").
func VariableTypes(op *OperationDefinition) map[string]string {
	out := make(map[string]string, len(op.VariableDefinitions))
	for _, vd := range op.VariableDefinitions {
		if vd.Type == nil {
			continue
		}
		out[vd.Variable] = vd.Type.Name()
	}
	return out
}

// Skipped evaluates @skip and @include against vars.
func Skipped(directives DirectiveList, vars map[string]any) bool {
	if d := directives.ForName("skip"); d != nil {
		if isTrue(d, vars) {
			return true
		}
	}
	if d := directives.ForName("include"); d != nil {
		if !isTrue(d, vars) {
			return true
		}
	}
	return false
}

func isTrue(d *Directive, vars map[string]any) bool {
	arg := d.Arguments.ForName("if")
	if arg == nil || arg.Value == nil {
		return false
	}
	v, err := arg.Value.Value(vars)
	if err != nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

// ResolveVariables returns vars completed with the default values declared by
// op for variables the caller did not supply.
func ResolveVariables(op *OperationDefinition, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+len(op.VariableDefinitions))
	for k, v := range vars {
		out[k] = v
	}
	for _, vd := range op.VariableDefinitions {
		if _, ok := out[vd.Variable]; ok || vd.DefaultValue == nil {
			continue
		}
		if v, err := vd.DefaultValue.Value(nil); err == nil {
			out[vd.Variable] = v
		}
	}
	return out
}
