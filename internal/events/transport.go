package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// TransportStart is emitted before an exchange reaches the transport cache or
// the network.
type TransportStart struct {
	OperationName string
	Endpoint      string
	CachePolicy   string
}

// TransportFinish is emitted after an exchange completes.
type TransportFinish struct {
	OperationName string
	Endpoint      string
	StatusCode    int
	FromCache     bool
	Err           error
	Duration      time.Duration
}

// HTTPClientFinish is emitted for each HTTP attempt made by the HTTP transport.
type HTTPClientFinish struct {
	Method   string
	URL      string
	Status   int
	Attempt  int
	Err      error
	Duration time.Duration
}

// GRPCClientStart is emitted before a gRPC client call.
type GRPCClientStart struct {
	Service string
	Method  string
	Target  string
}

// GRPCClientFinish is emitted after a gRPC client call completes.
type GRPCClientFinish struct {
	Service  string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
