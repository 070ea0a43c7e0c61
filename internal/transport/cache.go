package transport

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Cache stores raw responses keyed by the transport cache key.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get returns the stored response with its Received time intact so callers
//     can apply their own freshness rules.
type Cache interface {
	Get(key string) (*Response, bool)
	Set(key string, resp *Response)
	Remove(key string)
	Clear()
}

// Config holds the configuration of the sturdyc-backed transport cache.
type Config struct {
	// Capacity is the maximum number of stored responses. Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards. Must be greater than 0.
	NumShards int

	// TTL bounds how long a response is retained at all. Freshness for
	// CacheDefault is decided separately by the caller's max age.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when the cache is
	// full. Must be between 1 and 100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept. Zero uses the
	// sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config suitable for a single client.
func DefaultConfig() Config {
	return Config{
		Capacity:           1000,
		NumShards:          16,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "transport: config error in field " + e.Field + ": " + e.Message
}

// SturdyCache is a Cache backed by a sharded sturdyc client.
type SturdyCache struct {
	client *sturdyc.Client[Response]
}

var _ Cache = (*SturdyCache)(nil)

// NewCache validates cfg and creates a SturdyCache.
func NewCache(cfg Config) (*SturdyCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}
	client := sturdyc.New[Response](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage, opts...)
	return &SturdyCache{client: client}, nil
}

func (c *SturdyCache) Get(key string) (*Response, bool) {
	resp, ok := c.client.Get(key)
	if !ok {
		return nil, false
	}
	return clone(&resp), true
}

func (c *SturdyCache) Set(key string, resp *Response) {
	if resp == nil {
		return
	}
	c.client.Set(key, *clone(resp))
}

func (c *SturdyCache) Remove(key string) {
	c.client.Delete(key)
}

func (c *SturdyCache) Clear() {
	for _, key := range c.client.ScanKeys() {
		c.client.Delete(key)
	}
}

// Len reports the number of stored responses.
func (c *SturdyCache) Len() int {
	return c.client.Size()
}

func clone(r *Response) *Response {
	out := *r
	out.Header = r.Header.Clone()
	out.Body = append([]byte(nil), r.Body...)
	out.FromCache = false
	return &out
}
