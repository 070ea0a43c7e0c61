package events

import "time"

// CallStart is emitted when a call begins executing.
type CallStart struct {
	OperationName string
	OperationType string
	CachePolicy   string
	Async         bool
}

// CallFinish is emitted once a call's result is known.
type CallFinish struct {
	OperationName string
	OperationType string
	FromCache     bool
	ErrorCount    int
	Err           error
	Duration      time.Duration
}

// WatcherRefetch is emitted when a watcher refetches its operation.
type WatcherRefetch struct {
	OperationName string
	// Keys lists the invalidated records; empty for explicit refetches.
	Keys        []string
	CachePolicy string
}
