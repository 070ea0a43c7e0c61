package interceptor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"

	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/transport"
)

const getUserQuery = `query GetUser($id: ID!) { user(id: $id) { __typename id name } }`

func newOp(t *testing.T, src string, vars ...cachekey.Variable) *Operation {
	t.Helper()
	doc, err := language.ParseQuery(src)
	require.NoError(t, err)
	def, err := language.SelectOperation(doc, "")
	require.NoError(t, err)
	return &Operation{
		Name:       def.Name,
		Type:       def.Operation,
		Query:      src,
		Document:   doc,
		Definition: def,
		Variables:  vars,
	}
}

func getUser(t *testing.T, id int) *Operation {
	return newOp(t, getUserQuery, cachekey.Variable{Name: "id", Value: id})
}

type fixture struct {
	store *record.MemoryStore
	tp    *transport.MockTransport
	cache *transport.SturdyCache
	deps  Deps
}

func newFixture(t *testing.T, tp *transport.MockTransport, withCache bool) *fixture {
	t.Helper()
	f := &fixture{store: record.NewMemoryStore(), tp: tp}
	f.deps = Deps{Store: f.store, Transport: tp, Flights: &singleflight.Group{}}
	if withCache {
		c, err := transport.NewCache(transport.DefaultConfig())
		require.NoError(t, err)
		f.cache = c
		f.deps.TransportCache = c
	}
	return f
}

func (f *fixture) run(ctx context.Context, req *Request) (*Response, error) {
	return NewDefaultChain(f.deps).Proceed(ctx, req)
}

// stage is a recording Interceptor.
type stage struct {
	name     string
	mu       *sync.Mutex
	log      *[]string
	answer   *Response
	disposed int
}

func (s *stage) record(e string) {
	s.mu.Lock()
	*s.log = append(*s.log, e)
	s.mu.Unlock()
}

func (s *stage) Intercept(ctx context.Context, req *Request, next Next) (*Response, error) {
	s.record(s.name + ">")
	if s.answer != nil {
		return s.answer, nil
	}
	resp, err := next(ctx, req)
	s.record("<" + s.name)
	return resp, err
}

func (s *stage) Dispose() {
	s.disposed++
	s.record("dispose " + s.name)
}

// queue holds dispatched tasks until run.
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

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
