package graphcall

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/reqid"
)

// CallState is the lifecycle state of a Call.
type CallState int32

const (
	// StateCreated calls can be configured and started.
	StateCreated CallState = iota
	// StateExecuted calls are running.
	StateExecuted
	// StateCompleted calls have delivered their result.
	StateCompleted
	// StateDisposed calls were canceled before delivering a result.
	StateDisposed
)

func (s CallState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateExecuted:
		return "executed"
	case StateCompleted:
		return "completed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Call runs one operation once.
//
// Contract:
//   - Execute, Enqueue and Async start the call; only the first start
//     succeeds, later ones return ErrAlreadyExecuted.
//   - At most one result is delivered. Cancel either wins against delivery, in
//     which case no callback runs and Execute returns ErrCanceled, or it is a
//     no-op.
//   - All methods are safe for concurrent use.
type Call[T any] struct {
	client   *Client
	op       *Operation[T]
	policy   CachePolicy
	tcPolicy TransportCachePolicy
	chain    *interceptor.Chain
	log      logging.Logger
	state    atomic.Int32
}

func newCall[T any](c *Client, op *Operation[T]) *Call[T] {
	return buildCall(c, op, c.opts.CachePolicy, c.opts.TransportCachePolicy)
}

func buildCall[T any](c *Client, op *Operation[T], policy CachePolicy, tcPolicy TransportCachePolicy) *Call[T] {
	if op.op.IsMutation() {
		policy = NetworkOnly
	}
	return &Call[T]{
		client:   c,
		op:       op,
		policy:   policy,
		tcPolicy: tcPolicy,
		chain:    interceptor.NewDefaultChain(c.deps),
		log:      c.opts.Logger.With(logging.F("operation", op.Name()), logging.F("operation_type", op.Type())),
	}
}

// Operation is the operation the call runs.
func (c *Call[T]) Operation() *Operation[T] { return c.op }

// CachePolicy is the normalized cache policy. Mutations always report
// NetworkOnly.
func (c *Call[T]) CachePolicy() CachePolicy { return c.policy }

// TransportCachePolicy is the transport cache policy.
func (c *Call[T]) TransportCachePolicy() TransportCachePolicy { return c.tcPolicy }

// State is the current lifecycle state.
func (c *Call[T]) State() CallState { return CallState(c.state.Load()) }

// WithCachePolicy returns a new call using p. Only legal before the call
// started.
func (c *Call[T]) WithCachePolicy(p CachePolicy) (*Call[T], error) {
	if c.State() != StateCreated {
		return nil, c.stateError()
	}
	return buildCall(c.client, c.op, p, c.tcPolicy), nil
}

// WithTransportCachePolicy returns a new call using p. Only legal before the
// call started.
func (c *Call[T]) WithTransportCachePolicy(p TransportCachePolicy) (*Call[T], error) {
	if c.State() != StateCreated {
		return nil, c.stateError()
	}
	return buildCall(c.client, c.op, c.policy, p), nil
}

// Clone returns a new, unstarted call with the same operation and policies.
func (c *Call[T]) Clone() *Call[T] {
	return buildCall(c.client, c.op, c.policy, c.tcPolicy)
}

// Watcher returns a watcher over a clone of the call.
func (c *Call[T]) Watcher() *Watcher[T] {
	return newWatcher(c.Clone())
}

// Execute runs the call and waits for its result.
func (c *Call[T]) Execute(ctx context.Context) (*Response[T], error) {
	if err := c.start(); err != nil {
		return nil, err
	}
	ctx, _ = reqid.NewContext(ctx)
	started := time.Now()
	c.begin(ctx, false)

	resp, err := c.chain.Proceed(ctx, c.request())
	if !c.state.CompareAndSwap(int32(StateExecuted), int32(StateCompleted)) {
		resp, err = nil, ErrCanceled
	}
	return c.finish(ctx, started, resp, err)
}

// Enqueue runs the call on the client's dispatcher and reports the result to
// cb. A nil cb discards the result.
func (c *Call[T]) Enqueue(ctx context.Context, cb Callback[T]) error {
	return c.enqueue(ctx, func(r *Response[T], err error) {
		switch {
		case cb == nil:
		case err != nil:
			cb.OnFailure(err)
		default:
			cb.OnResponse(r)
		}
	}, nil)
}

// Async runs the call on the client's dispatcher. The channel receives at most
// one Result and is closed afterwards; it is closed without a value when the
// call is canceled.
func (c *Call[T]) Async(ctx context.Context) (<-chan Result[T], error) {
	ch := make(chan Result[T], 1)
	err := c.enqueue(ctx, func(r *Response[T], err error) {
		ch <- Result[T]{Response: r, Err: err}
		close(ch)
	}, func() { close(ch) })
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *Call[T]) enqueue(ctx context.Context, deliver func(*Response[T], error), canceled func()) error {
	if err := c.start(); err != nil {
		return err
	}
	ctx, _ = reqid.NewContext(ctx)
	started := time.Now()
	c.begin(ctx, true)

	c.chain.ProceedAsync(ctx, c.request(), c.client.opts.Dispatcher, func(resp *interceptor.Response, err error) {
		if !c.state.CompareAndSwap(int32(StateExecuted), int32(StateCompleted)) {
			_, _ = c.finish(ctx, started, nil, ErrCanceled)
			if canceled != nil {
				canceled()
			}
			return
		}
		deliver(c.finish(ctx, started, resp, err))
	})
	return nil
}

// Cancel stops the call. It is idempotent and has no effect once a result was
// delivered.
func (c *Call[T]) Cancel() {
	for {
		s := c.state.Load()
		if s == int32(StateCompleted) || s == int32(StateDisposed) {
			return
		}
		if c.state.CompareAndSwap(s, int32(StateDisposed)) {
			break
		}
	}
	c.chain.Dispose()
	c.log.Debug(context.Background(), "call canceled")
}

func (c *Call[T]) start() error {
	if c.state.CompareAndSwap(int32(StateCreated), int32(StateExecuted)) {
		return nil
	}
	return c.stateError()
}

func (c *Call[T]) stateError() error {
	if c.State() == StateDisposed {
		return fmt.Errorf("%w: call was canceled", ErrAlreadyExecuted)
	}
	return ErrAlreadyExecuted
}

func (c *Call[T]) request() *interceptor.Request {
	return &interceptor.Request{
		Operation:            c.op.op,
		Endpoint:             c.client.opts.Endpoint,
		Header:               c.client.header(),
		CachePolicy:          c.policy,
		TransportCachePolicy: c.tcPolicy,
		TransportMaxAge:      c.client.opts.TransportCacheMaxAge,
	}
}

func (c *Call[T]) begin(ctx context.Context, async bool) {
	eventbus.Publish(ctx, c.client.opts.Bus, events.CallStart{
		OperationName: c.op.Name(),
		OperationType: c.op.Type(),
		CachePolicy:   c.policy.String(),
		Async:         async,
	})
	c.log.Debug(ctx, "call started",
		logging.F("cache_policy", c.policy.String()),
		logging.F("transport_cache_policy", c.tcPolicy.String()),
		logging.F("async", async))
}

func (c *Call[T]) finish(ctx context.Context, started time.Time, resp *interceptor.Response, err error) (*Response[T], error) {
	var out *Response[T]
	if err == nil {
		out = newResponse[T](resp)
	}
	fin := events.CallFinish{
		OperationName: c.op.Name(),
		OperationType: c.op.Type(),
		Err:           err,
		Duration:      time.Since(started),
	}
	if out != nil {
		fin.FromCache = out.FromCache
		fin.ErrorCount = len(out.Errors)
	}
	eventbus.Publish(ctx, c.client.opts.Bus, fin)

	elapsed := logging.F("duration_ms", fin.Duration.Milliseconds())
	switch {
	case errors.Is(err, ErrCanceled):
		c.log.Debug(ctx, "call canceled", elapsed)
	case err != nil:
		c.log.Error(ctx, "call failed", logging.Err(err), elapsed)
	default:
		c.log.Info(ctx, "call completed", elapsed,
			logging.F("from_cache", out.FromCache),
			logging.F("from_transport_cache", out.FromTransportCache),
			logging.F("errors", len(out.Errors)))
	}
	return out, err
}
