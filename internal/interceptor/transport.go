package interceptor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/transport"
	"github.com/hanpama/graphcall/internal/wire"
)

// TransportInterceptor is the last stage: it encodes the request, consults the
// transport cache and performs the exchange. It never calls next.
type TransportInterceptor struct {
	tp      transport.Transport
	cache   transport.Cache
	flights *singleflight.Group
	scalars wire.Scalars
	log     logging.Logger
	bus     *eventbus.Bus
	now     func() time.Time

	mu       sync.Mutex
	cancel   context.CancelFunc
	disposed bool
}

func NewTransportInterceptor(d Deps) *TransportInterceptor {
	return &TransportInterceptor{
		tp:      d.Transport,
		cache:   d.TransportCache,
		flights: d.Flights,
		scalars: d.Scalars,
		log:     d.logger(),
		bus:     d.Bus,
		now:     time.Now,
	}
}

func (t *TransportInterceptor) Intercept(ctx context.Context, req *Request, _ Next) (*Response, error) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return nil, ErrCanceled
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	op := req.Operation
	body, err := wire.EncodeRequest(op.Query, op.Name, op.Variables, language.VariableTypes(op.Definition), t.scalars)
	if err != nil {
		return nil, err
	}
	treq := &transport.Request{
		Endpoint:      req.Endpoint,
		Header:        req.Header,
		Body:          body,
		OperationName: op.Name,
		OperationType: string(op.Type),
		CachePolicy:   req.TransportCachePolicy,
	}
	if t.cache != nil && !op.IsMutation() {
		if treq.CacheKey, err = cachekey.Transport(req.Endpoint, body); err != nil {
			return nil, err
		}
	}

	start := t.now()
	eventbus.Publish(ctx, t.bus, events.TransportStart{
		OperationName: op.Name,
		Endpoint:      req.Endpoint,
		CachePolicy:   req.TransportCachePolicy.String(),
	})
	resp, err := t.exchange(ctx, treq, req.TransportMaxAge)
	if err == nil && !resp.OK() {
		err = &TransportError{
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	finish := events.TransportFinish{
		OperationName: op.Name,
		Endpoint:      req.Endpoint,
		Err:           err,
		Duration:      t.now().Sub(start),
	}
	if resp != nil {
		finish.StatusCode = resp.StatusCode
		finish.FromCache = resp.FromCache
	}
	eventbus.Publish(ctx, t.bus, finish)

	if err != nil {
		if t.isDisposed() {
			return nil, ErrCanceled
		}
		var te *TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		te = &TransportError{Endpoint: req.Endpoint, Err: err}
		var ce *transport.CodeError
		if errors.As(err, &ce) {
			te.Code = ce.Code
		}
		t.log.Warn(ctx, "transport failed", logging.F("operation", op.Name), logging.F("endpoint", req.Endpoint), logging.Err(err))
		return nil, te
	}
	return &Response{Raw: resp, FromTransportCache: resp.FromCache}, nil
}

func (t *TransportInterceptor) exchange(ctx context.Context, req *transport.Request, maxAge time.Duration) (*transport.Response, error) {
	if t.cache == nil || !req.Cacheable() {
		return t.tp.Do(ctx, req)
	}

	switch req.CachePolicy {
	case transport.CacheForce:
		if resp, ok := t.cache.Get(req.CacheKey); ok {
			resp.FromCache = true
			return resp, nil
		}
	case transport.CacheDefault:
		if resp, ok := t.cache.Get(req.CacheKey); ok && maxAge > 0 && t.now().Sub(resp.Received) < maxAge {
			resp.FromCache = true
			return resp, nil
		}
	}

	fill := func(ctx context.Context) (*transport.Response, error) {
		resp, err := t.tp.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			if resp.Received.IsZero() {
				resp.Received = t.now()
			}
			t.cache.Set(req.CacheKey, resp)
		}
		return resp, nil
	}
	if t.flights == nil {
		return fill(ctx)
	}

	// The shared fill outlives any single waiter; each waiter stops waiting
	// when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := t.flights.DoChan(req.CacheKey, func() (any, error) {
		return fill(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transport.Response), nil
	}
}

func (t *TransportInterceptor) isDisposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// Dispose cancels the in-flight exchange, if any, and rejects later ones.
func (t *TransportInterceptor) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disposed = true
	if t.cancel != nil {
		t.cancel()
	}
}
