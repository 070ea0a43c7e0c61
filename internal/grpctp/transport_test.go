package grpctp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/transport"
)

// startServer runs a gRPC server answering every method with handle.
func startServer(t *testing.T, handle func(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error)) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		in := &structpb.Struct{}
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		out, err := handle(stream.Context(), method, in)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func newTestTransport(lis *bufconn.Listener, opts ...Option) *Transport {
	dial := WithDialOptions(
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	provider := WithProvider(NewStaticEndpoints(map[string][]string{"users": {"bufnet"}}))
	return New(append([]Option{dial, provider}, opts...)...)
}

func TestDoExecutesOverGRPC(t *testing.T) {
	var gotMethod, gotQuery string
	var gotMD metadata.MD
	lis := startServer(t, func(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
		gotMethod = method
		gotMD, _ = metadata.FromIncomingContext(ctx)
		gotQuery = in.Fields["query"].GetStringValue()
		return structpb.NewStruct(map[string]any{
			"data": map[string]any{"me": map[string]any{"id": "1"}},
		})
	})

	bus := eventbus.New()
	var finished []events.GRPCClientFinish
	eventbus.Subscribe(bus, func(_ context.Context, e events.GRPCClientFinish) { finished = append(finished, e) })

	tp := newTestTransport(lis, WithEventBus(bus))
	defer tp.Close()

	resp, err := tp.Do(context.Background(), &transport.Request{
		Endpoint:      "users",
		OperationName: "Me",
		Header:        map[string][]string{"X-Tenant": {"acme"}},
		Body:          []byte(`{"query":"{ me { id } }"}`),
	})
	require.NoError(t, err)
	require.True(t, resp.OK())

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &body))
	require.Equal(t, map[string]any{"data": map[string]any{"me": map[string]any{"id": "1"}}}, body)

	require.Equal(t, "/graphql.GraphQL/Execute", gotMethod)
	require.Equal(t, "{ me { id } }", gotQuery)
	require.Equal(t, []string{"acme"}, gotMD.Get("x-tenant"))
	require.Equal(t, []string{"Me"}, gotMD.Get("x-graphql-operation"))

	require.Len(t, finished, 1)
	require.Equal(t, "graphql.GraphQL", finished[0].Service)
	require.Equal(t, "Execute", finished[0].Method)
	require.Equal(t, codes.OK, finished[0].Code)
}

func TestDoMapsStatusErrors(t *testing.T) {
	lis := startServer(t, func(context.Context, string, *structpb.Struct) (*structpb.Struct, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	tp := newTestTransport(lis)
	defer tp.Close()

	_, err := tp.Do(context.Background(), &transport.Request{Endpoint: "users", Body: []byte(`{"query":"{ a }"}`)})
	var ce *transport.CodeError
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "Unavailable", ce.Code)
}

func TestDoUnknownEndpoint(t *testing.T) {
	lis := startServer(t, func(context.Context, string, *structpb.Struct) (*structpb.Struct, error) {
		return &structpb.Struct{}, nil
	})
	tp := newTestTransport(lis)
	defer tp.Close()

	_, err := tp.Do(context.Background(), &transport.Request{Endpoint: "orders", Body: []byte(`{}`)})
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestDoAfterClose(t *testing.T) {
	tp := New(WithProvider(NewStaticEndpoints(nil)))
	require.NoError(t, tp.Close())
	_, err := tp.Do(context.Background(), &transport.Request{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestStaticEndpointsSet(t *testing.T) {
	p := NewStaticEndpoints(nil)
	_, err := p.Endpoints(context.Background(), "a")
	require.ErrorIs(t, err, ErrNoEndpoints)
	p.Set("a", "h:1", "h:2")
	got, err := p.Endpoints(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []string{"h:1", "h:2"}, got)
}
