// Package httptp sends GraphQL requests as JSON over HTTP POST.
package httptp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/transport"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("httptp: closed")

// Transport is a transport.Transport over net/http.
type Transport struct {
	opts   *Options
	client *http.Client
	closed atomic.Bool
}

var _ transport.Transport = (*Transport)(nil)

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	client := o.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	return &Transport{opts: o, client: client}
}

// retryable marks a failure worth another attempt.
type retryable struct {
	err error
}

func (e *retryable) Error() string { return e.err.Error() }
func (e *retryable) Unwrap() error { return e.err }

func (t *Transport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	attempt := 0
	op := func() (*transport.Response, error) {
		attempt++
		resp, err := t.attempt(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}
		var r *retryable
		if errors.As(err, &r) && ctx.Err() == nil {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	if t.opts.MaxTries < 2 {
		resp, err := t.attempt(ctx, req, 1)
		return resp, unwrapRetry(err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.InitialInterval
	b.MaxInterval = t.opts.MaxInterval
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.opts.MaxTries),
	)
	return resp, unwrapRetry(err)
}

func (t *Transport) attempt(ctx context.Context, req *transport.Request, attempt int) (*transport.Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	for k, vs := range t.opts.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		hreq.Header.Del(k)
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	hreq.Header.Set("Content-Type", "application/json")
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/graphql-response+json, application/json")
	}
	if t.opts.Signer != nil {
		if err := t.opts.Signer.Sign(ctx, hreq); err != nil {
			return nil, fmt.Errorf("httptp: sign request: %w", err)
		}
	}

	start := time.Now()
	status := 0
	defer func() {
		eventbus.Publish(ctx, t.opts.Bus, events.HTTPClientFinish{
			Method:   hreq.Method,
			URL:      req.Endpoint,
			Status:   status,
			Attempt:  attempt,
			Err:      err,
			Duration: time.Since(start),
		})
	}()

	hresp, err := t.client.Do(hreq)
	if err != nil {
		err = &retryable{err: err}
		return nil, err
	}
	defer hresp.Body.Close()
	status = hresp.StatusCode
	body, err := io.ReadAll(hresp.Body)
	if err != nil {
		err = &retryable{err: err}
		return nil, err
	}
	resp := &transport.Response{
		StatusCode: hresp.StatusCode,
		Header:     hresp.Header,
		Body:       body,
		Received:   time.Now(),
	}
	switch hresp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		if attempt < int(t.opts.MaxTries) {
			err = &retryable{err: fmt.Errorf("httptp: status %d", hresp.StatusCode)}
			return nil, err
		}
	}
	return resp, nil
}

func unwrapRetry(err error) error {
	var r *retryable
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

// Close releases idle connections. Subsequent calls to Do fail with ErrClosed.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.client.CloseIdleConnections()
	return nil
}
