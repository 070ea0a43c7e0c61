// Package wire encodes GraphQL requests and decodes GraphQL responses in the
// standard JSON-over-HTTP shape.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hanpama/graphcall/internal/cachekey"
)

var (
	// ErrMalformedResponse indicates a response body that is not a GraphQL result.
	ErrMalformedResponse = errors.New("wire: malformed response")
)

// Request is the JSON body of a GraphQL request.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Location is a position in the operation document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of the "errors" list of a response.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Response is a decoded GraphQL result. Numbers are kept as json.Number.
type Response struct {
	Data       map[string]any
	HasData    bool
	Errors     []Error
	Extensions map[string]any
}

type result struct {
	Data       json.RawMessage `json:"data"`
	Errors     []Error         `json:"errors"`
	Extensions map[string]any  `json:"extensions"`
}

// EncodeRequest renders the request body for query. Variables declared with a
// type listed in types are passed through the matching scalar adapter.
func EncodeRequest(query, operationName string, vars []cachekey.Variable, types map[string]string, scalars Scalars) ([]byte, error) {
	req := Request{Query: query, OperationName: operationName}
	if len(vars) > 0 {
		req.Variables = make(map[string]any, len(vars))
		for _, v := range vars {
			val, err := scalars.Encode(types[v.Name], v.Value)
			if err != nil {
				return nil, fmt.Errorf("wire: variable %q: %w", v.Name, err)
			}
			req.Variables[v.Name] = val
		}
	}
	return json.Marshal(req)
}

// DecodeRequest parses a request body produced by EncodeRequest.
func DecodeRequest(body []byte) (Request, error) {
	var req Request
	if err := decode(body, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeResponse parses a GraphQL response body. A body with neither data nor
// errors is malformed.
func DecodeResponse(body []byte) (*Response, error) {
	var raw result
	if err := decode(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	out := &Response{Errors: raw.Errors, Extensions: raw.Extensions}
	trimmed := bytes.TrimSpace(raw.Data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := decode(trimmed, &out.Data); err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrMalformedResponse, err)
		}
		out.HasData = true
	}
	if !out.HasData && len(out.Errors) == 0 {
		return nil, fmt.Errorf("%w: neither data nor errors", ErrMalformedResponse)
	}
	return out, nil
}

func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
