package grpctp

import (
	"context"
	"sync"
)

// EndpointProvider resolves the logical endpoint of a request (the client's
// configured endpoint, e.g. "users") to reachable addresses (host:port).
// Implementations may integrate with service discovery/registry systems.
// Return at least one address or an error.
// Implementations should be safe for concurrent use.

type EndpointProvider interface {
	Endpoints(ctx context.Context, endpoint string) ([]string, error)
}

// StaticEndpoints is a simple provider backed by an in-memory map.
// Key is the logical endpoint; value is list of addresses.

type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		vv := make([]string, len(v))
		copy(vv, v)
		cp[k] = vv
	}
	return &StaticEndpoints{data: cp}
}

// Set replaces the addresses of endpoint.
func (s *StaticEndpoints) Set(endpoint string, addrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[endpoint] = append([]string(nil), addrs...)
}

func (s *StaticEndpoints) Endpoints(ctx context.Context, endpoint string) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[endpoint]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	out := make([]string, len(arr))
	copy(out, arr)
	return out, nil
}
