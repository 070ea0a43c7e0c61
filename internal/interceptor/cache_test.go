package interceptor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/transport"
	"github.com/hanpama/graphcall/internal/wire"
)

const annBody = `{"data":{"user":{"__typename":"User","id":"1","name":"Ann"}}}`

func userData(name string) map[string]any {
	return map[string]any{"user": map[string]any{"__typename": "User", "id": "1", "name": name}}
}

func TestCacheFirstServesSecondCallFromCache(t *testing.T) {
	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody)), false)
	req := &Request{Operation: getUser(t, 1), Endpoint: "http://api"}
	ctx := context.Background()

	first, err := f.run(ctx, req)
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, []string{`GetUser({"id":1})`, "User:1"}, first.DependentKeys)
	if diff := cmp.Diff(userData("Ann"), first.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}

	second, err := f.run(ctx, req)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	if diff := cmp.Diff(userData("Ann"), second.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, f.tp.Calls(), 1)
}

func TestCacheOnlyMissNeverReachesTransport(t *testing.T) {
	f := newFixture(t, transport.NewMockTransport(), false)
	_, err := f.run(context.Background(), &Request{Operation: getUser(t, 1), CachePolicy: CacheOnly})

	require.True(t, errors.Is(err, ErrCacheMiss))
	var miss *CacheMissError
	require.True(t, errors.As(err, &miss))
	require.Equal(t, `GetUser({"id":1})`, miss.Key)
	require.Empty(t, f.tp.Calls())
}

func TestNetworkOnlySkipsReadButWrites(t *testing.T) {
	bob := `{"data":{"user":{"__typename":"User","id":"1","name":"Bob"}}}`
	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody), transport.JSON(bob)), false)
	ctx := context.Background()
	req := &Request{Operation: getUser(t, 1), CachePolicy: NetworkOnly}

	_, err := f.run(ctx, req)
	require.NoError(t, err)
	resp, err := f.run(ctx, req)
	require.NoError(t, err)
	require.False(t, resp.FromCache)
	require.Len(t, f.tp.Calls(), 2)
	require.Equal(t, "Bob", f.store.Read([]string{"User:1"})["User:1"].Fields["name"])
}

func TestNetworkFirstFallsBackOnTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	tp := transport.NewMockTransportWithErrors([]*transport.Response{transport.JSON(annBody)}, []error{nil, boom})
	f := newFixture(t, tp, false)
	ctx := context.Background()

	_, err := f.run(ctx, &Request{Operation: getUser(t, 1), CachePolicy: NetworkOnly})
	require.NoError(t, err)

	resp, err := f.run(ctx, &Request{Operation: getUser(t, 1), CachePolicy: NetworkFirst})
	require.NoError(t, err)
	require.True(t, resp.FromCache)
	if diff := cmp.Diff(userData("Ann"), resp.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestNetworkFirstMissReturnsTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	f := newFixture(t, transport.NewMockTransportWithErrors(nil, []error{boom}), false)

	_, err := f.run(context.Background(), &Request{Operation: getUser(t, 1), Endpoint: "http://api", CachePolicy: NetworkFirst})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "http://api", te.Endpoint)
	require.True(t, errors.Is(err, boom))
	require.False(t, errors.Is(err, ErrCacheMiss))
}

func TestNetworkFirstDoesNotFallBackOnParseError(t *testing.T) {
	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody), transport.JSON(`not json`)), false)
	ctx := context.Background()

	_, err := f.run(ctx, &Request{Operation: getUser(t, 1)})
	require.NoError(t, err)

	_, err = f.run(ctx, &Request{Operation: getUser(t, 1), CachePolicy: NetworkFirst})
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
}

func TestMutationsBypassCacheReadAndUpdateSharedRecords(t *testing.T) {
	renamed := `{"data":{"rename":{"__typename":"User","id":"1","name":"Annie"}}}`
	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody), transport.JSON(renamed), transport.JSON(renamed)), false)
	ctx := context.Background()

	_, err := f.run(ctx, &Request{Operation: getUser(t, 1)})
	require.NoError(t, err)

	rename := newOp(t, `mutation Rename($id: ID!) { rename(id: $id) { __typename id name } }`, cachekey.Variable{Name: "id", Value: 1})
	for i := 0; i < 2; i++ {
		resp, err := f.run(ctx, &Request{Operation: rename, CachePolicy: CacheFirst})
		require.NoError(t, err)
		require.False(t, resp.FromCache)
	}
	require.Len(t, f.tp.Calls(), 3)

	resp, err := f.run(ctx, &Request{Operation: getUser(t, 1), CachePolicy: CacheOnly})
	require.NoError(t, err)
	if diff := cmp.Diff(userData("Annie"), resp.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheHitUsesMapper(t *testing.T) {
	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody)), false)
	op := getUser(t, 1)
	op.Map = func(data map[string]any, _ wire.Scalars) (any, error) {
		return data["user"].(map[string]any)["name"], nil
	}
	ctx := context.Background()

	_, err := f.run(ctx, &Request{Operation: op})
	require.NoError(t, err)
	resp, err := f.run(ctx, &Request{Operation: op, CachePolicy: CacheOnly})
	require.NoError(t, err)
	require.Equal(t, "Ann", resp.Data)
}

func TestDeclaredDefaultSharesRootKey(t *testing.T) {
	const src = `query GetUser($id: ID = "1") { user(id: $id) { __typename id name } }`
	implicit := newOp(t, src)
	explicit := newOp(t, src, cachekey.Variable{Name: "id", Value: "1"})
	require.Equal(t, `GetUser({"id":"1"})`, implicit.RootKey())
	require.Equal(t, implicit.RootKey(), explicit.RootKey())

	f := newFixture(t, transport.NewMockTransport(transport.JSON(annBody)), false)
	ctx := context.Background()
	_, err := f.run(ctx, &Request{Operation: implicit, CachePolicy: NetworkOnly})
	require.NoError(t, err)

	resp, err := f.run(ctx, &Request{Operation: explicit, CachePolicy: CacheOnly})
	require.NoError(t, err)
	require.True(t, resp.FromCache)
	if diff := cmp.Diff(userData("Ann"), resp.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}
