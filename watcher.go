package graphcall

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/record"
)

// Watcher keeps a query's result current. After each successful response it
// subscribes to the response's dependent records; when any of them changes it
// runs the query again and delivers the new result to the same callback.
//
// The subscription is replaced after every fetch. Records that changed between
// the fetch reading them and the new subscription trigger one more refetch.
type Watcher[T any] struct {
	call          *Call[T]
	refetchPolicy CachePolicy
	started       atomic.Bool

	mu          sync.Mutex
	ctx         context.Context
	cb          Callback[T]
	current     *Call[T]
	keys        []string
	unsubscribe func()
	stop        func() bool
	canceled    bool
}

func newWatcher[T any](c *Call[T]) *Watcher[T] {
	return &Watcher[T]{call: c, refetchPolicy: CacheFirst}
}

// WithRefetchPolicy returns a watcher refetching with p after invalidations.
// Only legal before EnqueueAndWatch.
func (w *Watcher[T]) WithRefetchPolicy(p CachePolicy) (*Watcher[T], error) {
	if w.started.Load() {
		return nil, ErrAlreadyExecuted
	}
	return &Watcher[T]{call: w.call, refetchPolicy: p}, nil
}

// RefetchPolicy is the policy used for refetches after invalidations.
func (w *Watcher[T]) RefetchPolicy() CachePolicy { return w.refetchPolicy }

// EnqueueAndWatch starts the watcher. Results are delivered to cb until Cancel
// is called or ctx is done.
func (w *Watcher[T]) EnqueueAndWatch(ctx context.Context, cb Callback[T]) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}
	w.mu.Lock()
	if w.canceled {
		w.mu.Unlock()
		return fmt.Errorf("%w: watcher was canceled", ErrAlreadyExecuted)
	}
	w.ctx, w.cb = ctx, cb
	w.mu.Unlock()

	stop := context.AfterFunc(ctx, w.Cancel)
	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()

	return w.run(w.call.Clone())
}

// Refetch runs the query again from the network.
func (w *Watcher[T]) Refetch() error {
	if !w.started.Load() {
		return ErrNotWatching
	}
	return w.refetch(nil, NetworkOnly)
}

// Cancel stops the watcher. It is idempotent. The in-flight call is canceled
// and no callback starts after Cancel returns.
func (w *Watcher[T]) Cancel() {
	w.mu.Lock()
	if w.canceled {
		w.mu.Unlock()
		return
	}
	w.canceled = true
	cur, unsub, stop := w.current, w.unsubscribe, w.stop
	w.current, w.unsubscribe = nil, nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cur != nil {
		cur.Cancel()
	}
	if stop != nil {
		stop()
	}
	w.call.log.Debug(context.Background(), "watcher canceled")
}

func (w *Watcher[T]) invalidated(changed []string) {
	_ = w.refetch(changed, w.refetchPolicy)
}

func (w *Watcher[T]) refetch(keys []string, policy CachePolicy) error {
	w.mu.Lock()
	if w.canceled {
		w.mu.Unlock()
		return nil
	}
	ctx := w.ctx
	w.mu.Unlock()

	eventbus.Publish(ctx, w.call.client.opts.Bus, events.WatcherRefetch{
		OperationName: w.call.op.Name(),
		Keys:          keys,
		CachePolicy:   policy.String(),
	})
	w.call.log.Debug(ctx, "watcher refetch", logging.F("keys", keys), logging.F("cache_policy", policy.String()))

	next, err := w.call.WithCachePolicy(policy)
	if err != nil {
		return err
	}
	return w.run(next)
}

func (w *Watcher[T]) run(call *Call[T]) error {
	w.mu.Lock()
	if w.canceled {
		w.mu.Unlock()
		return nil
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
	prev := w.current
	w.current = call
	ctx := w.ctx
	w.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	err := call.enqueue(ctx, func(r *Response[T], err error) {
		w.deliver(call, r, err)
	}, nil)
	if err != nil && call.State() == StateDisposed {
		// Canceled between publishing and starting the call.
		return nil
	}
	return err
}

func (w *Watcher[T]) deliver(call *Call[T], r *Response[T], err error) {
	w.mu.Lock()
	if w.canceled || w.current != call {
		w.mu.Unlock()
		return
	}
	var seen []record.Record
	if err == nil {
		w.keys, seen = r.DependentKeys, r.records
	}
	store := w.call.client.opts.Store
	if len(w.keys) > 0 && w.unsubscribe == nil {
		w.unsubscribe = store.Subscribe(w.keys, w.invalidated)
	}
	cb := w.cb
	w.mu.Unlock()

	switch {
	case cb == nil:
	case err != nil:
		cb.OnFailure(err)
	default:
		cb.OnResponse(r)
	}
	if stale := record.Changed(store, seen); len(stale) > 0 {
		w.invalidated(stale)
	}
}
