// Package transport defines the network collaborator of the call pipeline and
// the transport-level response cache.
package transport

import (
	"context"
	"net/http"
	"time"
)

// CachePolicy controls how the transport cache is consulted for one exchange.
type CachePolicy int

const (
	// CacheDefault serves a stored response younger than the configured max age
	// and otherwise fetches and stores.
	CacheDefault CachePolicy = iota
	// CacheForce serves any stored response regardless of age.
	CacheForce
	// CacheForceNetwork always fetches and stores the result.
	CacheForceNetwork
)

func (p CachePolicy) String() string {
	switch p {
	case CacheDefault:
		return "default"
	case CacheForce:
		return "force-cache"
	case CacheForceNetwork:
		return "force-network"
	default:
		return "unknown"
	}
}

// Request describes one exchange with the remote service.
type Request struct {
	Endpoint      string
	Header        http.Header
	Body          []byte
	OperationName string
	// OperationType is "query", "mutation" or "subscription".
	OperationType string
	CachePolicy   CachePolicy
	CacheKey      string
}

// Cacheable reports whether the exchange may be served from or stored in the
// transport cache. Mutations never are.
func (r *Request) Cacheable() bool {
	return r.CacheKey != "" && r.OperationType != "mutation"
}

// Response is the raw result of an exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FromCache is set when the response was served by the transport cache.
	FromCache bool
	// Received is when the response arrived from the network.
	Received time.Time
}

// OK reports a 2xx status. A zero status is treated as success for transports
// without HTTP semantics.
func (r *Response) OK() bool {
	return r.StatusCode == 0 || (r.StatusCode >= 200 && r.StatusCode < 300)
}

// Transport performs exchanges with a GraphQL service.
// Implementations MUST be safe for concurrent use and MUST return promptly
// once ctx is canceled.
//
// Provided implementations:
// - internal/httptp.Transport: JSON over HTTP POST
// - internal/grpctp.Transport: GraphQL over gRPC with pooling and timeouts
// - MockTransport: scripted responses for tests
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// CodeError carries a transport-specific failure code (e.g. a gRPC status
// code name) alongside the underlying error.
type CodeError struct {
	Code string
	Err  error
}

func (e *CodeError) Error() string { return e.Code + ": " + e.Err.Error() }
func (e *CodeError) Unwrap() error { return e.Err }
