package graphcall

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphcall/internal/dispatch"
	"github.com/hanpama/graphcall/internal/transport"
)

const getUserDoc = `query GetUser($id: ID!) { user(id: $id) { __typename id name } }`

const renameDoc = `mutation Rename($id: ID!, $name: String!) { rename(id: $id, name: $name) { __typename id name } }`

type user struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type getUserData struct {
	User *user `json:"user"`
}

func userBody(name string) string {
	return `{"data":{"user":{"__typename":"User","id":"1","name":"` + name + `"}}}`
}

func renameBody(name string) string {
	return `{"data":{"rename":{"__typename":"User","id":"1","name":"` + name + `"}}}`
}

func getUser(t *testing.T) *Operation[getUserData] {
	t.Helper()
	op, err := NewQuery[getUserData](getUserDoc, nil, WithVariable("id", 1))
	require.NoError(t, err)
	return op
}

func rename(t *testing.T, name string) *Operation[map[string]any] {
	t.Helper()
	op, err := NewMutation[map[string]any](renameDoc, nil, WithVariable("id", 1), WithVariable("name", name))
	require.NoError(t, err)
	return op
}

func newTestClient(t *testing.T, tp transport.Transport, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithEndpoint("http://graphql.test/query"), WithTransport(tp), WithDispatcher(dispatch.Inline{})}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

// queue holds dispatched tasks until run is called.
type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) Dispatch(task func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *queue) run() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// blocking answers every exchange once release is closed, or fails when the
// exchange's context is done.
func blocking(release <-chan struct{}, entered chan<- struct{}, body string) *transport.MockTransport {
	return transport.NewMockTransportFunc(func(ctx context.Context, _ *transport.Request) (*transport.Response, error) {
		if entered != nil {
			entered <- struct{}{}
		}
		select {
		case <-release:
			return transport.JSON(body), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// recorder collects watcher and callback deliveries.
type recorder[T any] struct {
	mu        sync.Mutex
	responses []*Response[T]
	failures  []error
}

func (r *recorder[T]) OnResponse(resp *Response[T]) {
	r.mu.Lock()
	r.responses = append(r.responses, resp)
	r.mu.Unlock()
}

func (r *recorder[T]) OnFailure(err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.responses) + len(r.failures)
}

func (r *recorder[T]) snapshot() ([]*Response[T], []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Response[T](nil), r.responses...), append([]error(nil), r.failures...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
