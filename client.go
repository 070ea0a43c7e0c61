package graphcall

import (
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/hanpama/graphcall/internal/dispatch"
	"github.com/hanpama/graphcall/internal/httptp"
	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/record"
)

// Client holds the collaborators shared by every call: the endpoint and its
// transport, the normalized store, the transport cache and the dispatcher.
// A Client is safe for concurrent use.
type Client struct {
	opts Options
	deps interceptor.Deps
}

// New creates a Client.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = logging.Noop()
	}
	if o.Store == nil {
		o.Store = record.NewMemoryStore()
	}
	if o.Dispatcher == nil {
		o.Dispatcher = dispatch.Go{}
	}
	if o.Transport == nil {
		o.Transport = httptp.New(httptp.WithEventBus(o.Bus))
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		opts: *o,
		deps: interceptor.Deps{
			Store:          o.Store,
			Transport:      o.Transport,
			TransportCache: o.TransportCache,
			Flights:        &singleflight.Group{},
			Scalars:        o.Scalars,
			Logger:         o.Logger,
			Bus:            o.Bus,
		},
	}, nil
}

// Query returns a new call running op with the client's default policies.
func Query[T any](c *Client, op *Operation[T]) *Call[T] {
	return newCall(c, op)
}

// Mutate returns a new call running the mutation op. Mutations always go to
// the network.
func Mutate[T any](c *Client, op *Operation[T]) *Call[T] {
	return newCall(c, op)
}

// Store is the normalized record store shared by the client's calls.
func (c *Client) Store() Store { return c.opts.Store }

// Endpoint is the URL or address operations are sent to.
func (c *Client) Endpoint() string { return c.opts.Endpoint }

// ClearNormalizedCache removes every record and notifies watchers.
func (c *Client) ClearNormalizedCache() { c.opts.Store.Clear() }

// ClearTransportCache removes every stored raw response.
func (c *Client) ClearTransportCache() {
	if c.opts.TransportCache != nil {
		c.opts.TransportCache.Clear()
	}
}

// Close releases the transport when it holds resources.
func (c *Client) Close() error {
	if cl, ok := c.opts.Transport.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Client) header() http.Header { return c.opts.Header.Clone() }
