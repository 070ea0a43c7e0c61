package grpctp

import "errors"

var (
	// ErrNoEndpoints indicates the provider returned no addresses for an endpoint.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")

	// ErrClosed is returned by Do after Close.
	ErrClosed = errors.New("grpctp: closed")
)
