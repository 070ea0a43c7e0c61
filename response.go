package graphcall

import (
	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/record"
)

// Response is the immutable result of a call.
type Response[T any] struct {
	// Data is the mapped value; the zero T when HasData is false.
	Data    T
	HasData bool
	// Errors are the operation errors reported alongside (or instead of) data.
	Errors []OperationError

	// FromCache is set when the normalized cache answered.
	FromCache bool
	// FromTransportCache is set when the raw response came from the transport
	// cache.
	FromTransportCache bool

	// DependentKeys are the record keys the data was built from.
	DependentKeys []string

	records []record.Record
}

// HasErrors reports whether the response carries operation errors.
func (r *Response[T]) HasErrors() bool { return len(r.Errors) > 0 }

func newResponse[T any](r *interceptor.Response) *Response[T] {
	out := &Response[T]{
		HasData:            r.HasData,
		Errors:             r.Errors,
		FromCache:          r.FromCache,
		FromTransportCache: r.FromTransportCache,
		DependentKeys:      r.DependentKeys,
		records:            r.Records,
	}
	if v, ok := r.Data.(T); ok {
		out.Data = v
	}
	return out
}

// Callback receives the outcome of an asynchronous call. Exactly one method
// is invoked per delivered result.
type Callback[T any] interface {
	OnResponse(*Response[T])
	OnFailure(error)
}

// CallbackFuncs adapts two functions to Callback. Nil functions are skipped.
type CallbackFuncs[T any] struct {
	Response func(*Response[T])
	Failure  func(error)
}

func (c CallbackFuncs[T]) OnResponse(r *Response[T]) {
	if c.Response != nil {
		c.Response(r)
	}
}

func (c CallbackFuncs[T]) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// Result is the value delivered on the channel returned by Async.
type Result[T any] struct {
	Response *Response[T]
	Err      error
}
