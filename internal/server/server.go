// Package server serves a scripted GraphQL endpoint over HTTP. Requests are
// parsed and syntax-checked like a real server would; answers come from a
// Resolver supplied by the caller.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hanpama/graphcall/internal/language"
)

// Resolver answers one request.
type Resolver func(ctx context.Context, req GraphQLRequest) Result

// Result is what a Resolver returns. A zero Status means 200.
type Result struct {
	Status int
	Data   any
	Errors []Error
	// Raw, when set, is written as the body verbatim.
	Raw string
}

// Error is one entry of the response "errors" list.
type Error struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Handler is an http.Handler that serves a GraphQL endpoint.
type Handler struct {
	resolve Resolver
	opt     Options

	mu       sync.Mutex
	requests []GraphQLRequest
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses.
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// ForwardHeaders lists HTTP headers copied into GraphQLRequest.Header.
	// Header names are case-insensitive. Default is none.
	ForwardHeaders []string
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}

// New creates a handler answering with resolve.
func New(resolve Resolver, opts ...Option) *Handler {
	op := Options{Timeout: 10 * time.Second}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{resolve: resolve, opt: op}
}

// Requests returns the requests served so far, in arrival order.
func (h *Handler) Requests() []GraphQLRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]GraphQLRequest(nil), h.requests...)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse("method not allowed"), h.opt.Pretty)
		return
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != "" {
		status := http.StatusBadRequest
		if berr == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}
	header := h.forwarded(r.Header)

	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			batch[i].Header = header
			res := h.executeOne(ctx, batch[i])
			out[i] = toSpecResult(res)
		}
		writeJSON(w, http.StatusOK, out, h.opt.Pretty)
		return
	}

	req.Header = header
	res := h.executeOne(ctx, req)
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	if res.Raw != "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, res.Raw)
		return
	}
	writeJSON(w, status, toSpecResult(res), h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) Result {
	h.mu.Lock()
	h.requests = append(h.requests, req)
	h.mu.Unlock()

	// Syntax validation only; there is no schema to validate against.
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		if ge, ok := err.(*language.Error); ok {
			return Result{Errors: []Error{locatedError(ge)}}
		}
		return Result{Errors: []Error{{Message: err.Error()}}}
	}
	if _, err := language.SelectOperation(doc, req.OperationName); err != nil {
		return Result{Errors: []Error{{Message: err.Error()}}}
	}
	return h.resolve(ctx, req)
}

func (h *Handler) forwarded(in http.Header) http.Header {
	out := http.Header{}
	for _, name := range h.opt.ForwardHeaders {
		if vs := in.Values(name); len(vs) > 0 {
			out[http.CanonicalHeaderKey(name)] = vs
		}
	}
	return out
}

// Sequence answers the n-th request with the n-th result and repeats the last
// one afterwards.
func Sequence(results ...Result) Resolver {
	var mu sync.Mutex
	i := 0
	return func(context.Context, GraphQLRequest) Result {
		mu.Lock()
		defer mu.Unlock()
		if len(results) == 0 {
			return Result{Errors: []Error{{Message: "no scripted result"}}}
		}
		res := results[min(i, len(results)-1)]
		i++
		return res
	}
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`

	Header http.Header `json:"-"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, string) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, "missing 'query'"
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, "invalid 'variables' JSON"
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, ""
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, "unsupported Content-Type"
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, "failed to read body"
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, errBodyTooLargeMessage
	}

	dec := func(b []byte, v any) error {
		d := json.NewDecoder(bytes.NewReader(b))
		d.UseNumber()
		return d.Decode(v)
	}

	// Try array (batch)
	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := dec(body, &arr); err != nil {
			return GraphQLRequest{}, nil, "invalid JSON"
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, "empty batch"
		}
		return GraphQLRequest{}, arr, ""
	}
	var req GraphQLRequest
	if err := dec(body, &req); err != nil {
		return GraphQLRequest{}, nil, "invalid JSON"
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, "missing 'query'"
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, ""
}

// ------------------ Response formatting ------------------

type specResult struct {
	Data   any     `json:"data"`
	Errors []Error `json:"errors,omitempty"`
}

func errorResponse(msg string) specResult {
	return specResult{Errors: []Error{{Message: msg}}}
}

func toSpecResult(res Result) specResult {
	return specResult{Data: res.Data, Errors: res.Errors}
}

func locatedError(e *language.Error) Error {
	out := Error{Message: e.Message, Extensions: e.Extensions}
	for _, l := range e.Locations {
		out.Locations = append(out.Locations, Location{Line: l.Line, Column: l.Column})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"
