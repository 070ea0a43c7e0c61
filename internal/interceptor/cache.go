package interceptor

import (
	"context"
	"errors"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/normalize"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/wire"
)

// CacheInterceptor answers from the normalized cache according to the
// request's CachePolicy. Mutations are never answered from the cache.
type CacheInterceptor struct {
	store   record.Store
	scalars wire.Scalars
	log     logging.Logger
	bus     *eventbus.Bus
}

func NewCacheInterceptor(d Deps) *CacheInterceptor {
	return &CacheInterceptor{store: d.Store, scalars: d.Scalars, log: d.logger(), bus: d.Bus}
}

func (c *CacheInterceptor) Intercept(ctx context.Context, req *Request, next Next) (*Response, error) {
	op := req.Operation
	policy := req.CachePolicy
	if op.IsMutation() {
		policy = NetworkOnly
	}

	switch policy {
	case CacheOnly:
		return c.read(ctx, req)

	case NetworkOnly:
		return next(ctx, req)

	case NetworkFirst:
		resp, err := next(ctx, req)
		if err == nil {
			return resp, nil
		}
		var te *TransportError
		if !errors.As(err, &te) {
			return nil, err
		}
		cached, cerr := c.read(ctx, req)
		if cerr != nil {
			c.log.Debug(ctx, "network-first fallback missed", logging.F("operation", op.Name), logging.Err(cerr))
			return nil, err
		}
		c.log.Debug(ctx, "network-first served from cache", logging.F("operation", op.Name), logging.Err(err))
		return cached, nil

	default:
		cached, err := c.read(ctx, req)
		if err == nil {
			return cached, nil
		}
		c.log.Debug(ctx, "cache-first falling through to network", logging.F("operation", op.Name), logging.Err(err))
		return next(ctx, req)
	}
}

func (c *CacheInterceptor) read(ctx context.Context, req *Request) (*Response, error) {
	op := req.Operation
	root := op.RootKey()
	data, seen, err := normalize.ReadRecords(op.Plan(), c.store)
	eventbus.Publish(ctx, c.bus, events.CacheRead{OperationName: op.Name, Key: root, Hit: err == nil})
	if err != nil {
		var miss *normalize.MissError
		if errors.As(err, &miss) {
			return nil, &CacheMissError{Operation: op.Name, Key: miss.Key, Field: miss.Field}
		}
		return nil, err
	}
	mapped, err := op.mapData(data, c.scalars)
	if err != nil {
		return nil, &ParseError{Err: err, Data: data}
	}
	deps := make([]string, len(seen))
	for i, rec := range seen {
		deps[i] = rec.Key
	}
	return &Response{
		Data:          mapped,
		RawData:       data,
		HasData:       true,
		FromCache:     true,
		DependentKeys: deps,
		Records:       seen,
	}, nil
}

func (c *CacheInterceptor) Dispose() {}
