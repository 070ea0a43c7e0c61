package interceptor

import (
	"golang.org/x/sync/singleflight"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/transport"
	"github.com/hanpama/graphcall/internal/wire"
)

// Deps are the collaborators shared by every chain of one client.
type Deps struct {
	Store     record.Store
	Transport transport.Transport
	// TransportCache may be nil, which disables transport caching.
	TransportCache transport.Cache
	// Flights coalesces concurrent identical transport fills. Nil disables
	// coalescing.
	Flights *singleflight.Group
	Scalars wire.Scalars
	Logger  logging.Logger
	Bus     *eventbus.Bus
}

func (d Deps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.Noop()
	}
	return d.Logger
}

// NewDefaultChain builds the cache, parse and transport stages over d.
func NewDefaultChain(d Deps) *Chain {
	return NewChain(NewCacheInterceptor(d), NewParseInterceptor(d), NewTransportInterceptor(d))
}
