// Package cachekey derives deterministic cache keys for operations, record
// fields and transport exchanges.
//
// Keys are built from canonical JSON: object members are sorted by name so the
// same logical value always produces the same key regardless of map iteration
// order.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Variable is one ordered variable binding of an operation.
type Variable struct {
	Name  string
	Value any
}

// Root returns the key of the root record of an operation,
// e.g. GetUser({"id":1}). An operation without variables is keyed by its name.
func Root(operationName string, vars []Variable) string {
	m := make(map[string]any, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	return RootMap(operationName, m)
}

// RootMap is Root for variables that are already resolved into a map.
func RootMap(operationName string, vars map[string]any) string {
	if operationName == "" {
		operationName = "QUERY_ROOT"
	}
	if len(vars) == 0 {
		return operationName
	}
	return operationName + "(" + mustCanonical(vars) + ")"
}

// Field returns the record field key for a field with resolved arguments.
func Field(name string, args map[string]any) string {
	if len(args) == 0 {
		return name
	}
	return name + "(" + mustCanonical(args) + ")"
}

// Object returns the identity key of a normalized object, or "" when the object
// carries no usable identity. Objects are identified by __typename plus id.
func Object(obj map[string]any) string {
	typename, _ := obj["__typename"].(string)
	if typename == "" {
		return ""
	}
	id, ok := obj["id"]
	if !ok || id == nil {
		return ""
	}
	return typename + ":" + scalarString(id)
}

// Path returns the key of an object without identity, nested below parent.
func Path(parent string, segments ...string) string {
	return parent + "." + strings.Join(segments, ".")
}

// Transport returns the transport cache key of a request body sent to endpoint.
// Format: gql:<endpoint>:<hash> where hash is the first 16 hex characters of
// SHA-256 over the canonical body.
func Transport(endpoint string, body []byte) (string, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("cachekey: body is not JSON: %w", err)
	}
	canonical, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("gql:%s:%s", endpoint, hex.EncodeToString(sum[:8])), nil
}

// Canonical produces a deterministic JSON representation of v.
func Canonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalMap(val)
	case []any:
		return canonicalSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte("{")
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, kb...)
		out = append(out, ':')
		vb, err := Canonical(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, '}'), nil
}

func canonicalSlice(s []any) ([]byte, error) {
	out := []byte("[")
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		vb, err := Canonical(v)
		if err != nil {
			return nil, err
		}
		out = append(out, vb...)
	}
	return append(out, ']'), nil
}

// mustCanonical is used for values that already came out of JSON decoding or
// the query parser; a marshal failure there falls back to fmt formatting.
func mustCanonical(v any) string {
	b, err := Canonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return mustCanonical(x)
	}
}
