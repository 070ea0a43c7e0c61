package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func post(t *testing.T, h http.Handler, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestServesResolverResult(t *testing.T) {
	h := New(func(_ context.Context, req GraphQLRequest) Result {
		return Result{Data: map[string]any{"user": map[string]any{"id": req.Variables["id"]}}}
	})
	w := post(t, h, `{"query":"query GetUser($id: ID!) { user(id: $id) { id } }","operationName":"GetUser","variables":{"id":"7"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	want := map[string]any{"data": map[string]any{"user": map[string]any{"id": "7"}}}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Fatalf("body mismatch (-want +got):\n%s", diff)
	}
	reqs := h.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "GetUser", reqs[0].OperationName)
}

func TestSyntaxErrorsNeverReachResolver(t *testing.T) {
	called := false
	h := New(func(context.Context, GraphQLRequest) Result {
		called = true
		return Result{}
	})
	w := post(t, h, `{"query":"{ user( }"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, called)

	body := decode(t, w)
	require.Nil(t, body["data"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].(map[string]any), "locations")
}

func TestUnknownOperationName(t *testing.T) {
	h := New(Sequence(Result{Data: map[string]any{}}))
	w := post(t, h, `{"query":"query A { a } query B { b }","operationName":"C"}`)
	errs := decode(t, w)["errors"].([]any)
	require.Contains(t, errs[0].(map[string]any)["message"], "operation not found")
}

func TestSequenceRepeatsLast(t *testing.T) {
	h := New(Sequence(
		Result{Status: http.StatusServiceUnavailable, Raw: `{"errors":[{"message":"busy"}]}`},
		Result{Data: map[string]any{"a": 1}},
	))
	require.Equal(t, http.StatusServiceUnavailable, post(t, h, `{"query":"{ a }"}`).Code)
	for range 2 {
		w := post(t, h, `{"query":"{ a }"}`)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, map[string]any{"a": float64(1)}, decode(t, w)["data"])
	}
	require.Len(t, h.Requests(), 3)
}

func TestForwardedHeaders(t *testing.T) {
	var got http.Header
	h := New(func(_ context.Context, req GraphQLRequest) Result {
		got = req.Header
		return Result{Data: map[string]any{"hello": "world"}}
	}, WithForwardHeaders("Authorization"))

	post(t, h, `{"query":"{ hello }"}`, "Authorization", "Bearer abc", "X-Other", "nope")
	require.Equal(t, http.Header{"Authorization": {"Bearer abc"}}, got)
}

func TestBatch(t *testing.T) {
	h := New(func(_ context.Context, req GraphQLRequest) Result {
		return Result{Data: map[string]any{"op": req.OperationName}}
	})
	w := post(t, h, `[{"query":"query A { a }","operationName":"A"},{"query":"query B { b }","operationName":"B"}]`)
	require.Equal(t, http.StatusOK, w.Code)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, map[string]any{"op": "B"}, out[1]["data"])
}

func TestMaxBodyBytes(t *testing.T) {
	h := New(Sequence(Result{}), WithMaxBodyBytes(10))
	w := post(t, h, `{"query":"{ hello }"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRejectsOtherMethods(t *testing.T) {
	h := New(Sequence(Result{}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGetRequest(t *testing.T) {
	h := New(func(_ context.Context, req GraphQLRequest) Result {
		return Result{Data: req.Variables}
	})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, `/?query=%7B+a+%7D&variables=%7B%22x%22%3A1%7D`, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"x": float64(1)}, decode(t, w)["data"])
}
