package graphcall

import (
	"fmt"

	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/transport"
)

// CachePolicy selects how the normalized cache participates in a call.
type CachePolicy = interceptor.CachePolicy

const (
	CacheFirst   = interceptor.CacheFirst
	CacheOnly    = interceptor.CacheOnly
	NetworkOnly  = interceptor.NetworkOnly
	NetworkFirst = interceptor.NetworkFirst
)

// TransportCachePolicy selects how the transport cache participates in a call.
type TransportCachePolicy = transport.CachePolicy

const (
	TransportDefault      = transport.CacheDefault
	TransportForceCache   = transport.CacheForce
	TransportForceNetwork = transport.CacheForceNetwork
)

// ParseCachePolicy parses the names printed by CachePolicy.String.
func ParseCachePolicy(s string) (CachePolicy, error) {
	for _, p := range []CachePolicy{CacheFirst, CacheOnly, NetworkOnly, NetworkFirst} {
		if p.String() == s {
			return p, nil
		}
	}
	return CacheFirst, fmt.Errorf("graphcall: unknown cache policy %q", s)
}

// ParseTransportCachePolicy parses the names printed by TransportCachePolicy.String.
func ParseTransportCachePolicy(s string) (TransportCachePolicy, error) {
	for _, p := range []TransportCachePolicy{TransportDefault, TransportForceCache, TransportForceNetwork} {
		if p.String() == s {
			return p, nil
		}
	}
	return TransportDefault, fmt.Errorf("graphcall: unknown transport cache policy %q", s)
}
