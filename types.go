package graphcall

import (
	"github.com/hanpama/graphcall/internal/cachekey"
	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/interceptor"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/transport"
	"github.com/hanpama/graphcall/internal/wire"
)

type (
	// Variable is one ordered variable binding of an operation.
	Variable = cachekey.Variable

	// Scalars maps custom scalar type names to adapters.
	Scalars = wire.Scalars
	// ScalarAdapter converts a custom scalar between Go and JSON values.
	ScalarAdapter = wire.ScalarAdapter

	// OperationError is one entry of a response's "errors" list. It is part of
	// a successful response, never a call failure.
	OperationError = wire.Error
	// Location is a position in the operation document.
	Location = wire.Location

	Transport         = transport.Transport
	TransportRequest  = transport.Request
	TransportResponse = transport.Response
	TransportCache    = transport.Cache

	Store     = record.Store
	Record    = record.Record
	Reference = record.Reference

	Dispatcher = interceptor.Dispatcher
	Logger     = logging.Logger
	EventBus   = eventbus.Bus
)
