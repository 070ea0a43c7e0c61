// Package interceptor implements the staged pipeline a call runs through:
// the normalized cache stage, the parse stage and the transport stage.
//
// Each stage receives the request and a continuation to the next stage; it may
// answer without continuing (a cache hit) or post-process what the rest of the
// chain returns (parsing and normalizing a raw response).
package interceptor

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/transport"
	"github.com/hanpama/graphcall/internal/wire"
)

// CachePolicy selects how the normalized cache participates in a call.
type CachePolicy int

const (
	// CacheFirst serves from the cache when every field is present and
	// otherwise fetches from the network.
	CacheFirst CachePolicy = iota
	// CacheOnly serves from the cache and never reaches the network.
	CacheOnly
	// NetworkOnly skips the cache read; the response is still written.
	NetworkOnly
	// NetworkFirst fetches from the network and falls back to the cache when
	// the transport fails.
	NetworkFirst
)

func (p CachePolicy) String() string {
	switch p {
	case CacheFirst:
		return "cache-first"
	case CacheOnly:
		return "cache-only"
	case NetworkOnly:
		return "network-only"
	case NetworkFirst:
		return "network-first"
	default:
		return "unknown"
	}
}

// Request is what flows down the chain. It is not modified by stages.
type Request struct {
	Operation            *Operation
	Endpoint             string
	Header               http.Header
	CachePolicy          CachePolicy
	TransportCachePolicy transport.CachePolicy
	// TransportMaxAge bounds the age of responses served by the transport
	// cache under transport.CacheDefault.
	TransportMaxAge time.Duration
}

// Response is what flows back up the chain.
type Response struct {
	// Data is the mapped value produced by the operation's mapper.
	Data    any
	RawData map[string]any
	HasData bool
	Errors  []wire.Error

	FromCache          bool
	FromTransportCache bool
	DependentKeys      []string
	// Records holds the records the data was built from, as they were read or
	// written by this response.
	Records []record.Record

	// Raw is the transport response; set only between the transport and the
	// parse stage.
	Raw *transport.Response
}

// Next continues the chain at the following stage.
type Next func(ctx context.Context, req *Request) (*Response, error)

// Interceptor is one stage of the chain.
//
// Contract:
//   - Intercept may return without calling next.
//   - Dispose releases in-flight work; it may be called concurrently with
//     Intercept and more than once.
type Interceptor interface {
	Intercept(ctx context.Context, req *Request, next Next) (*Response, error)
	Dispose()
}

// Dispatcher runs asynchronous tasks.
type Dispatcher interface {
	Dispatch(task func())
}

// Chain is an ordered list of stages.
type Chain struct {
	stages   []Interceptor
	disposed atomic.Bool
}

// NewChain creates a chain running stages in order.
func NewChain(stages ...Interceptor) *Chain {
	return &Chain{stages: append([]Interceptor(nil), stages...)}
}

// Proceed runs the chain from its first stage.
func (c *Chain) Proceed(ctx context.Context, req *Request) (*Response, error) {
	return c.at(0)(ctx, req)
}

func (c *Chain) at(i int) Next {
	return func(ctx context.Context, req *Request) (*Response, error) {
		if i >= len(c.stages) {
			return nil, ErrChainExhausted
		}
		return c.stages[i].Intercept(ctx, req, c.at(i+1))
	}
}

// ProceedAsync runs the chain on a task submitted to d and reports the
// outcome to done. A task that starts after Dispose reports ErrCanceled
// without running any stage.
func (c *Chain) ProceedAsync(ctx context.Context, req *Request, d Dispatcher, done func(*Response, error)) {
	d.Dispatch(func() {
		if c.disposed.Load() {
			done(nil, ErrCanceled)
			return
		}
		done(c.Proceed(ctx, req))
	})
}

// Dispose disposes every stage in chain order. Only the first call has effect.
func (c *Chain) Dispose() {
	if c.disposed.Swap(true) {
		return
	}
	for _, s := range c.stages {
		s.Dispose()
	}
}

// Disposed reports whether Dispose was called.
func (c *Chain) Disposed() bool {
	return c.disposed.Load()
}
