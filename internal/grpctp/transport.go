// Package grpctp carries GraphQL requests over a unary gRPC method whose
// request and response are google.protobuf.Struct messages holding the usual
// JSON request and result objects.
package grpctp

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/transport"
)

// Transport is a real gRPC transport with connection pooling and deadline
// propagation. It integrates with an EndpointProvider for service discovery.

type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: address
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

var _ transport.Transport = (*Transport)(nil)

func (t *Transport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("grpctp: provider not configured")
	}

	// Determine deadline
	if _, ok := ctx.Deadline(); !ok {
		if t.opts.RPCTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
			defer cancel()
		}
	}

	in := &structpb.Struct{}
	if err := protojson.Unmarshal(req.Body, in); err != nil {
		return nil, fmt.Errorf("grpctp: request body: %w", err)
	}

	md := metadata.MD{}
	for k, vs := range req.Header {
		md[strings.ToLower(k)] = append([]string(nil), vs...)
	}
	if req.OperationName != "" {
		md.Set("x-graphql-operation", req.OperationName)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	addrs, err := t.opts.Provider.Endpoints(ctx, req.Endpoint)
	if err != nil {
		return nil, err
	}
	// pick one with shuffle
	addr := addrs[rand.Intn(len(addrs))]

	cc, err := t.getConn(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer t.returnConn(addr, cc)

	service, method := splitMethod(t.opts.Method)
	start := time.Now()
	eventbus.Publish(ctx, t.opts.Bus, events.GRPCClientStart{Service: service, Method: method, Target: addr})
	out := &structpb.Struct{}
	err = cc.Invoke(ctx, t.opts.Method, in, out)
	eventbus.Publish(ctx, t.opts.Bus, events.GRPCClientFinish{
		Service:  service,
		Method:   method,
		Target:   addr,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		code := status.Code(err)
		if code == codes.Canceled && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transport.CodeError{Code: code.String(), Err: err}
	}

	body, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("grpctp: response body: %w", err)
	}
	return &transport.Response{Body: body, Received: time.Now()}, nil
}

func splitMethod(full string) (service, method string) {
	full = strings.TrimPrefix(full, "/")
	if i := strings.LastIndex(full, "/"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type connPool struct {
	addr   string
	opts   *Options
	conns  chan *grpc.ClientConn
	closed atomic.Bool
}

func newConnPool(addr string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		addr:  addr,
		opts:  opts,
		conns: make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get(ctx context.Context) (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.DialContext(ctx, p.addr, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[addr]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[addr]
		if pool == nil {
			pool = newConnPool(addr, t.opts)
			t.pools[addr] = pool
		}
		t.mu.Unlock()
	}
	return pool.get(ctx)
}

func (t *Transport) returnConn(addr string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[addr]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
