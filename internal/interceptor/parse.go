package interceptor

import (
	"context"

	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/events"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/normalize"
	"github.com/hanpama/graphcall/internal/record"
	"github.com/hanpama/graphcall/internal/wire"
)

// ParseInterceptor decodes the raw response returned by the rest of the chain,
// writes its records to the store and maps its data.
//
// Records are written before mapping and are not rolled back when some fields
// fail to normalize or the mapper fails.
type ParseInterceptor struct {
	store   record.Store
	scalars wire.Scalars
	log     logging.Logger
	bus     *eventbus.Bus
}

func NewParseInterceptor(d Deps) *ParseInterceptor {
	return &ParseInterceptor{store: d.Store, scalars: d.Scalars, log: d.logger(), bus: d.Bus}
}

func (p *ParseInterceptor) Intercept(ctx context.Context, req *Request, next Next) (*Response, error) {
	raw, err := next(ctx, req)
	if err != nil {
		return nil, err
	}
	if raw.Raw == nil {
		return raw, nil
	}
	op := req.Operation

	decoded, err := wire.DecodeResponse(raw.Raw.Body)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	out := &Response{
		RawData:            decoded.Data,
		HasData:            decoded.HasData,
		Errors:             decoded.Errors,
		FromTransportCache: raw.FromTransportCache,
	}
	if !decoded.HasData {
		return out, nil
	}

	records, nerr := normalize.Normalize(op.Plan(), decoded.Data)
	changed := p.store.Write(records)
	eventbus.Publish(ctx, p.bus, events.CacheWrite{OperationName: op.Name, Records: len(records), Changed: changed})
	p.log.Debug(ctx, "records written",
		logging.F("operation", op.Name),
		logging.F("records", len(records)),
		logging.F("changed", len(changed)))
	if nerr != nil {
		return nil, &ParseError{Err: nerr, Data: decoded.Data}
	}

	out.Records = records
	out.DependentKeys = make([]string, len(records))
	for i, r := range records {
		out.DependentKeys[i] = r.Key
	}
	out.Data, err = op.mapData(decoded.Data, p.scalars)
	if err != nil {
		return nil, &ParseError{Err: err, Data: decoded.Data}
	}
	return out, nil
}

func (p *ParseInterceptor) Dispose() {}
