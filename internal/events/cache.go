package events

// CacheRead is emitted after the normalized cache is consulted.
type CacheRead struct {
	OperationName string
	Key           string
	Hit           bool
}

// CacheWrite is emitted after response records are written.
type CacheWrite struct {
	OperationName string
	Records       int
	Changed       []string
}
