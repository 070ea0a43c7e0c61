package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// CallRecord captures a single Do invocation for assertions.
type CallRecord struct {
	// Request is a copy of the request as received.
	Request Request
}

// MockTransport implements Transport and returns pre-seeded responses in order,
// while recording Do invocations for inspection. When built with
// NewMockTransportFunc every exchange is answered by the function instead.
type MockTransport struct {
	mu        sync.Mutex
	responses []*Response
	errs      []error
	idx       int
	calls     []CallRecord
	fn        func(ctx context.Context, req *Request) (*Response, error)
}

// NewMockTransport creates a MockTransport that will return the provided
// responses in order for successive Do() invocations.
func NewMockTransport(responses ...*Response) *MockTransport {
	cp := make([]*Response, len(responses))
	copy(cp, responses)
	return &MockTransport{responses: cp}
}

// NewMockTransportWithErrors allows seeding per-call errors alongside responses.
// For call i, if errs[i] is non-nil, Do returns that error and ignores responses[i].
func NewMockTransportWithErrors(responses []*Response, errs []error) *MockTransport {
	cp := make([]*Response, len(responses))
	copy(cp, responses)
	ep := make([]error, len(errs))
	copy(ep, errs)
	return &MockTransport{responses: cp, errs: ep}
}

// NewMockTransportFunc creates a MockTransport that answers with fn. fn runs
// without the mock's lock held and may block on ctx.
func NewMockTransportFunc(fn func(ctx context.Context, req *Request) (*Response, error)) *MockTransport {
	return &MockTransport{fn: fn}
}

// JSON builds a 200 response carrying body.
func JSON(body string) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(body),
		Received:   time.Now(),
	}
}

// Do records the invocation and returns the next queued response.
// If responses are exhausted, it returns an error.
func (m *MockTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	rec := *req
	rec.Header = req.Header.Clone()
	rec.Body = append([]byte(nil), req.Body...)
	m.calls = append(m.calls, CallRecord{Request: rec})
	fn := m.fn
	if fn != nil {
		m.mu.Unlock()
		return fn(ctx, req)
	}
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.idx >= len(m.responses) && m.idx >= len(m.errs) {
		return nil, fmt.Errorf("mock transport: no more responses")
	}
	if m.idx < len(m.errs) {
		if err := m.errs[m.idx]; err != nil {
			m.idx++
			return nil, err
		}
	}
	var resp *Response
	if m.idx < len(m.responses) {
		resp = m.responses[m.idx]
	}
	m.idx++
	return resp, nil
}

// Calls returns a snapshot of recorded Do invocations.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}
