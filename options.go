package graphcall

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/transport"
)

// Options configures a Client.
//
// Defaults:
// - Transport:            HTTP transport (POST application/json)
// - Store:                in-memory record store
// - TransportCache:       none
// - TransportCacheMaxAge: 1m
// - Dispatcher:           one goroutine per task
// - CachePolicy:          CacheFirst
// - TransportCachePolicy: TransportDefault
// - Logger:               discards everything
//
// Endpoint must be provided.
type Options struct {
	Endpoint string
	Header   http.Header

	Transport            transport.Transport
	Store                record.Store
	TransportCache       transport.Cache
	TransportCacheMaxAge time.Duration
	Dispatcher           Dispatcher
	Scalars              Scalars

	CachePolicy          CachePolicy
	TransportCachePolicy TransportCachePolicy

	Logger logging.Logger
	Bus    *eventbus.Bus
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Header:               http.Header{},
		TransportCacheMaxAge: time.Minute,
		Scalars:              Scalars{},
	}
}

// WithEndpoint sets the URL (or gRPC target) operations are sent to.
func WithEndpoint(url string) Option {
	return func(o *Options) { o.Endpoint = url }
}

// WithTransport replaces the default HTTP transport.
func WithTransport(t Transport) Option {
	return func(o *Options) { o.Transport = t }
}

// WithStore sets the normalized cache shared by the client's calls.
func WithStore(s Store) Option {
	return func(o *Options) { o.Store = s }
}

// WithTransportCache enables raw response caching in front of the transport.
func WithTransportCache(c TransportCache) Option {
	return func(o *Options) { o.TransportCache = c }
}

// WithDispatcher sets where asynchronous calls run.
func WithDispatcher(d Dispatcher) Option {
	return func(o *Options) { o.Dispatcher = d }
}

// WithCachePolicy sets the default normalized cache policy for queries.
func WithCachePolicy(p CachePolicy) Option {
	return func(o *Options) { o.CachePolicy = p }
}

// WithLogger sets the logger calls and stages write to.
func WithLogger(l Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithEventBus sets the bus lifecycle events are published on.
func WithEventBus(b *EventBus) Option {
	return func(o *Options) { o.Bus = b }
}

// WithHeader adds a header sent with every request. Repeated keys accumulate.
func WithHeader(key, value string) Option {
	return func(o *Options) { o.Header.Add(key, value) }
}

// WithTransportCacheMaxAge sets how long a transport cache entry is fresh
// under TransportDefault.
func WithTransportCacheMaxAge(d time.Duration) Option {
	return func(o *Options) { o.TransportCacheMaxAge = d }
}

// WithTransportCachePolicy sets the default transport cache policy.
func WithTransportCachePolicy(p TransportCachePolicy) Option {
	return func(o *Options) { o.TransportCachePolicy = p }
}

// WithScalars registers scalar adapters, replacing adapters of the same name.
func WithScalars(s Scalars) Option {
	return func(o *Options) {
		for name, a := range s {
			o.Scalars[name] = a
		}
	}
}

// Validate reports the first invalid setting.
func (o *Options) Validate() error {
	switch {
	case o.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required", ErrInvalidOptions)
	case o.Transport == nil:
		return fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	case o.Store == nil:
		return fmt.Errorf("%w: store is required", ErrInvalidOptions)
	case o.TransportCacheMaxAge < 0:
		return fmt.Errorf("%w: transport cache max age must not be negative", ErrInvalidOptions)
	}
	return nil
}
