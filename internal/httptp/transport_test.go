package httptp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/transport"
)

func TestDoPostsJSON(t *testing.T) {
	var gotBody, gotCT, gotTenant, gotReqHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		gotTenant = r.Header.Get("X-Tenant")
		gotReqHeader = r.Header.Get("X-Call")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"ok":true}}`)
	}))
	defer srv.Close()

	tp := New(WithHeader("X-Tenant", "acme"))
	defer tp.Close()
	resp, err := tp.Do(context.Background(), &transport.Request{
		Endpoint: srv.URL,
		Header:   http.Header{"X-Call": []string{"1"}},
		Body:     []byte(`{"query":"{ ok }"}`),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `{"data":{"ok":true}}`, string(resp.Body))
	require.False(t, resp.Received.IsZero())
	require.Equal(t, `{"query":"{ ok }"}`, gotBody)
	require.Equal(t, "application/json", gotCT)
	require.Equal(t, "acme", gotTenant)
	require.Equal(t, "1", gotReqHeader)
}

func TestDoReturnsNon2xxAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `oops`)
	}))
	defer srv.Close()

	resp, err := New(WithRetry(3, time.Millisecond)).Do(context.Background(), &transport.Request{Endpoint: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestDoRetriesUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	bus := eventbus.New()
	var attempts []int
	eventbus.Subscribe(bus, func(_ context.Context, e events.HTTPClientFinish) {
		attempts = append(attempts, e.Status)
	})

	tp := New(WithRetry(3, time.Millisecond), WithEventBus(bus))
	resp, err := tp.Do(context.Background(), &transport.Request{Endpoint: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), hits.Load())
	require.Equal(t, []int{503, 503, 200}, attempts)
}

func TestDoGivesUpAfterMaxTries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := New(WithRetry(2, time.Millisecond)).Do(context.Background(), &transport.Request{Endpoint: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, int32(2), hits.Load())
}

func TestDoHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := New(WithRetry(5, time.Millisecond)).Do(ctx, &transport.Request{Endpoint: srv.URL})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestDoAfterClose(t *testing.T) {
	tp := New()
	require.NoError(t, tp.Close())
	require.NoError(t, tp.Close())
	_, err := tp.Do(context.Background(), &transport.Request{Endpoint: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, ErrClosed)
}

func TestJWTSigner(t *testing.T) {
	key := []byte("test-secret")
	signer, err := NewJWTSigner(key, JWTClaims{Issuer: "graphcall", Subject: "cli", Audience: "api"})
	require.NoError(t, err)

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"data":{}}`)
	}))
	defer srv.Close()

	_, err = New(WithSigner(signer)).Do(context.Background(), &transport.Request{Endpoint: srv.URL})
	require.NoError(t, err)
	require.Regexp(t, `^Bearer `, auth)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(auth[len("Bearer "):], claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithAudience("api"), jwt.WithIssuer("graphcall"))
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, "cli", claims.Subject)

	_, err = NewJWTSigner(nil, JWTClaims{})
	require.Error(t, err)
}
