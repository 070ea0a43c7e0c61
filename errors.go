package graphcall

import (
	"errors"

	"github.com/hanpama/graphcall/internal/interceptor"
)

var (
	// ErrAlreadyExecuted is returned when a call, or a watcher, is started a
	// second time or modified after it started.
	ErrAlreadyExecuted = errors.New("graphcall: already executed")

	// ErrCanceled is returned by Execute when Cancel won the race with the
	// result.
	ErrCanceled = interceptor.ErrCanceled

	// ErrCacheMiss is matched by every *CacheMissError.
	ErrCacheMiss = interceptor.ErrCacheMiss

	// ErrInvalidOperation reports an operation document that cannot be run
	// with the given name or variables.
	ErrInvalidOperation = errors.New("graphcall: invalid operation")

	// ErrNotWatching is returned by Watcher.Refetch before EnqueueAndWatch.
	ErrNotWatching = errors.New("graphcall: watcher not started")

	// ErrInvalidOptions is wrapped by Options.Validate failures.
	ErrInvalidOptions = errors.New("graphcall: invalid options")
)

type (
	// CacheMissError reports the first record or field missing from the
	// normalized cache under CacheOnly.
	CacheMissError = interceptor.CacheMissError
	// TransportError reports a failed exchange.
	TransportError = interceptor.TransportError
	// ParseError reports a response that could not be decoded, normalized or
	// mapped. Records written before the failure are kept.
	ParseError = interceptor.ParseError
)
