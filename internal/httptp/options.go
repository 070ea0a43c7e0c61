package httptp

import (
	"net/http"
	"time"

	"github.com/hanpama/graphcall/internal/eventbus"
)

// Options configures the HTTP transport.
//
// Defaults:
// - Client:     a dedicated *http.Client with its own connection pool
// - Timeout:    10s (used only if the incoming context has no deadline)
// - MaxTries:   1 (no retries)
//
// All options are safe to leave zero-valued to use defaults.
type Options struct {
	Client  *http.Client
	Timeout time.Duration

	// MaxTries bounds attempts for connectivity failures and 502/503/504
	// responses. Values below 2 disable retries.
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration

	Signer Signer
	Header http.Header
	Bus    *eventbus.Bus
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout:         10 * time.Second,
		MaxTries:        1,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Header:          http.Header{},
	}
}

func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithSigner(s Signer) Option           { return func(o *Options) { o.Signer = s } }
func WithEventBus(b *eventbus.Bus) Option  { return func(o *Options) { o.Bus = b } }
func WithHeader(key, value string) Option  { return func(o *Options) { o.Header.Add(key, value) } }

func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(o *Options) {
		o.MaxTries = maxTries
		if initial > 0 {
			o.InitialInterval = initial
		}
	}
}
