package interceptor

import (
	"errors"
	"fmt"
)

var (
	// ErrChainExhausted is returned when a stage continues past the last stage.
	ErrChainExhausted = errors.New("interceptor: chain exhausted")

	// ErrCanceled reports a call canceled before its result was delivered.
	ErrCanceled = errors.New("graphcall: call canceled")

	// ErrCacheMiss is matched by every *CacheMissError.
	ErrCacheMiss = errors.New("graphcall: cache miss")
)

// CacheMissError reports the first record or field missing from the
// normalized cache.
type CacheMissError struct {
	Operation string
	Key       string
	Field     string
}

func (e *CacheMissError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("graphcall: cache miss for %s: record %q", e.Operation, e.Key)
	}
	return fmt.Sprintf("graphcall: cache miss for %s: record %q field %q", e.Operation, e.Key, e.Field)
}

func (e *CacheMissError) Is(target error) bool { return target == ErrCacheMiss }

// TransportError reports a failed exchange: connectivity failures, transport
// status codes and non-2xx HTTP responses.
type TransportError struct {
	Endpoint   string
	StatusCode int
	// Code is a transport-specific failure code, e.g. a gRPC status code name.
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("graphcall: transport %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	case e.Code != "":
		return fmt.Sprintf("graphcall: transport %s: %s: %v", e.Endpoint, e.Code, e.Err)
	default:
		return fmt.Sprintf("graphcall: transport %s: %v", e.Endpoint, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports a response that could not be decoded, normalized or
// mapped. Data holds the decoded response data when decoding got that far.
type ParseError struct {
	Err  error
	Data map[string]any
}

func (e *ParseError) Error() string {
	return "graphcall: parse response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
