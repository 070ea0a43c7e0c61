package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hanpama/graphcall"
	"github.com/hanpama/graphcall/internal/eventbus"
	"github.com/hanpama/graphcall/internal/grpctp"
	"github.com/hanpama/graphcall/internal/httptp"
	"github.com/hanpama/graphcall/internal/language"
	"github.com/hanpama/graphcall/internal/logging"
	"github.com/hanpama/graphcall/internal/otel"
	"github.com/hanpama/graphcall/internal/transport"
)

const rootUsage = `graphcall: GraphQL client with normalized and transport caching

USAGE:
  graphcall <command> [flags]

COMMANDS:
  query            Run one query or mutation and print the result
  help             Show help for any command
`

const queryUsage = `query FLAGS:
  -endpoint <url>                     GraphQL endpoint; for gRPC, the endpoint name (required)
  -query <document>                   Operation document
  -file <path>                        Read the operation document from a file
  -operation <name>                   Operation to run in a multi-operation document
  -var <name=json>                    Variable binding; non-JSON values are sent as strings. Repeatable
  -header <Key: Value>                Request header. Repeatable
  -cache.policy <policy>              cache-first | cache-only | network-only | network-first (default: cache-first)
  -transport.policy <policy>          default | force-cache | force-network (default: default)
  -transport.cache                    Enable the transport cache
  -transport.max-age <duration>       Transport cache freshness (default: 1m)
  -transport.backend <kind>           http | grpc (default: http)
  -transport.addr <host:port>         gRPC address serving the endpoint. Repeatable; required for grpc
  -transport.timeout <duration>       Per-exchange timeout when none is set (default: 10s)
  -transport.retries N                HTTP attempts for unavailable upstreams (default: 1)
  -auth.jwt-key <secret>              Sign HTTP requests with an HS256 bearer token
  -auth.jwt-subject <sub>             Subject claim of minted tokens
  -watch                              Keep printing results as the cached records change
  -watch.interval <duration>          Refetch from the network this long after each result
  -watch.count N                      Stop watching after N results (default: unlimited)
  -pretty                             Indent JSON output
  -log.level <level>                  debug | info | warn | error (default: warn)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphcall)
  -otel.stdout                        Write spans to stderr
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("graphcall", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "query":
		return cmdQuery(ctx, cmdArgs, stdout, stderr)
	case "help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "query":
		fmt.Fprint(stdout, queryUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type varFlag []graphcall.Variable

func (v *varFlag) String() string { return "" }

func (v *varFlag) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("invalid variable %q", s)
	}
	var value any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil || dec.More() {
		value = raw
	}
	*v = append(*v, graphcall.Variable{Name: name, Value: value})
	return nil
}

type queryConfig struct {
	endpoint      string
	query         string
	file          string
	operation     string
	vars          varFlag
	headers       stringListFlag
	cachePolicy   string
	tcPolicy      string
	tcEnabled     bool
	tcMaxAge      time.Duration
	backend       string
	addrs         stringListFlag
	timeout       time.Duration
	retries       uint
	jwtKey        string
	jwtSubject    string
	watch         bool
	watchInterval time.Duration
	watchCount    int
	pretty        bool
	logLevel      string
	otelEndpoint  string
	otelService   string
	otelStdout    bool
}

func cmdQuery(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := queryConfig{
		cachePolicy: graphcall.CacheFirst.String(),
		tcPolicy:    graphcall.TransportDefault.String(),
		tcMaxAge:    time.Minute,
		backend:     "http",
		timeout:     10 * time.Second,
		retries:     1,
		logLevel:    "warn",
		otelService: "graphcall",
	}
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&cfg.endpoint, "endpoint", cfg.endpoint, "GraphQL endpoint")
	fs.StringVar(&cfg.query, "query", cfg.query, "Operation document")
	fs.StringVar(&cfg.file, "file", cfg.file, "Operation document file")
	fs.StringVar(&cfg.operation, "operation", cfg.operation, "Operation name")
	fs.Var(&cfg.vars, "var", "Variable binding name=json")
	fs.Var(&cfg.headers, "header", "Request header")
	fs.StringVar(&cfg.cachePolicy, "cache.policy", cfg.cachePolicy, "Normalized cache policy")
	fs.StringVar(&cfg.tcPolicy, "transport.policy", cfg.tcPolicy, "Transport cache policy")
	fs.BoolVar(&cfg.tcEnabled, "transport.cache", cfg.tcEnabled, "Enable the transport cache")
	fs.DurationVar(&cfg.tcMaxAge, "transport.max-age", cfg.tcMaxAge, "Transport cache freshness")
	fs.StringVar(&cfg.backend, "transport.backend", cfg.backend, "http or grpc")
	fs.Var(&cfg.addrs, "transport.addr", "gRPC address")
	fs.DurationVar(&cfg.timeout, "transport.timeout", cfg.timeout, "Per-exchange timeout")
	fs.UintVar(&cfg.retries, "transport.retries", cfg.retries, "HTTP attempts")
	fs.StringVar(&cfg.jwtKey, "auth.jwt-key", cfg.jwtKey, "HS256 signing key")
	fs.StringVar(&cfg.jwtSubject, "auth.jwt-subject", cfg.jwtSubject, "JWT subject")
	fs.BoolVar(&cfg.watch, "watch", cfg.watch, "Watch the result")
	fs.DurationVar(&cfg.watchInterval, "watch.interval", cfg.watchInterval, "Refetch interval")
	fs.IntVar(&cfg.watchCount, "watch.count", cfg.watchCount, "Stop after N results")
	fs.BoolVar(&cfg.pretty, "pretty", cfg.pretty, "Indent JSON output")
	fs.StringVar(&cfg.logLevel, "log.level", cfg.logLevel, "Log level")
	fs.StringVar(&cfg.otelEndpoint, "otel.endpoint", cfg.otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.otelService, "otel.service", cfg.otelService, "OpenTelemetry service name")
	fs.BoolVar(&cfg.otelStdout, "otel.stdout", cfg.otelStdout, "Write spans to stderr")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(stderr, queryUsage)
		return err
	}
	if cfg.endpoint == "" {
		fmt.Fprint(stderr, queryUsage)
		return fmt.Errorf("-endpoint is required")
	}
	if (cfg.query == "") == (cfg.file == "") {
		fmt.Fprint(stderr, queryUsage)
		return fmt.Errorf("exactly one of -query and -file is required")
	}
	if cfg.file != "" {
		b, err := os.ReadFile(cfg.file)
		if err != nil {
			return err
		}
		cfg.query = string(b)
	}

	bus := eventbus.New()
	var spans io.Writer
	if cfg.otelStdout {
		spans = stderr
	}
	shutdown, err := otel.Setup(ctx, bus, otel.Config{Service: cfg.otelService, Endpoint: cfg.otelEndpoint, Stdout: spans})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	client, err := newClient(cfg, bus, logging.NewJSON(stderr, logging.ParseLevel(cfg.logLevel)))
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	call, err := newCall(client, cfg)
	if err != nil {
		return err
	}
	out := &printer{w: stdout, pretty: cfg.pretty}
	if !cfg.watch {
		resp, err := call.Execute(ctx)
		if err != nil {
			return err
		}
		return out.print(resp)
	}
	return watch(ctx, call, cfg, out)
}

func newClient(cfg queryConfig, bus *eventbus.Bus, logger logging.Logger) (*graphcall.Client, error) {
	cachePolicy, err := graphcall.ParseCachePolicy(cfg.cachePolicy)
	if err != nil {
		return nil, err
	}
	tcPolicy, err := graphcall.ParseTransportCachePolicy(cfg.tcPolicy)
	if err != nil {
		return nil, err
	}

	var tp transport.Transport
	switch cfg.backend {
	case "http":
		opts := []httptp.Option{
			httptp.WithEventBus(bus),
			httptp.WithTimeout(cfg.timeout),
			httptp.WithRetry(cfg.retries, 0),
		}
		if cfg.jwtKey != "" {
			signer, err := httptp.NewJWTSigner([]byte(cfg.jwtKey), httptp.JWTClaims{Issuer: "graphcall", Subject: cfg.jwtSubject})
			if err != nil {
				return nil, err
			}
			opts = append(opts, httptp.WithSigner(signer))
		}
		tp = httptp.New(opts...)
	case "grpc":
		if len(cfg.addrs) == 0 {
			return nil, fmt.Errorf("-transport.addr is required for the grpc backend")
		}
		tp = grpctp.New(
			grpctp.WithProvider(grpctp.NewStaticEndpoints(map[string][]string{cfg.endpoint: cfg.addrs})),
			grpctp.WithRPCTimeout(cfg.timeout),
			grpctp.WithEventBus(bus),
		)
	default:
		return nil, fmt.Errorf("unknown transport backend %q", cfg.backend)
	}

	opts := []graphcall.Option{
		graphcall.WithEndpoint(cfg.endpoint),
		graphcall.WithTransport(tp),
		graphcall.WithCachePolicy(cachePolicy),
		graphcall.WithTransportCachePolicy(tcPolicy),
		graphcall.WithTransportCacheMaxAge(cfg.tcMaxAge),
		graphcall.WithLogger(logger),
		graphcall.WithEventBus(bus),
	}
	for _, h := range cfg.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q", h)
		}
		opts = append(opts, graphcall.WithHeader(strings.TrimSpace(k), strings.TrimSpace(v)))
	}
	if cfg.tcEnabled {
		cache, err := transport.NewCache(transport.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts = append(opts, graphcall.WithTransportCache(cache))
	}
	return graphcall.New(opts...)
}

func newCall(client *graphcall.Client, cfg queryConfig) (*graphcall.Call[map[string]any], error) {
	doc, err := language.ParseQuery(cfg.query)
	if err != nil {
		return nil, err
	}
	def, err := language.SelectOperation(doc, cfg.operation)
	if err != nil {
		return nil, err
	}
	opts := []graphcall.OperationOption{graphcall.WithOperationName(cfg.operation)}
	for _, v := range cfg.vars {
		opts = append(opts, graphcall.WithVariable(v.Name, v.Value))
	}
	switch def.Operation {
	case language.Query:
		op, err := graphcall.NewQuery[map[string]any](cfg.query, nil, opts...)
		if err != nil {
			return nil, err
		}
		return graphcall.Query(client, op), nil
	case language.Mutation:
		if cfg.watch {
			return nil, fmt.Errorf("mutations cannot be watched")
		}
		op, err := graphcall.NewMutation[map[string]any](cfg.query, nil, opts...)
		if err != nil {
			return nil, err
		}
		return graphcall.Mutate(client, op), nil
	default:
		return nil, fmt.Errorf("%s operations are not supported", def.Operation)
	}
}

func watch(ctx context.Context, call *graphcall.Call[map[string]any], cfg queryConfig, out *printer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan graphcall.Result[map[string]any], 1)
	deliver := func(res graphcall.Result[map[string]any]) {
		select {
		case results <- res:
		case <-ctx.Done():
		}
	}
	w := call.Watcher()
	err := w.EnqueueAndWatch(ctx, graphcall.CallbackFuncs[map[string]any]{
		Response: func(r *graphcall.Response[map[string]any]) { deliver(graphcall.Result[map[string]any]{Response: r}) },
		Failure:  func(err error) { deliver(graphcall.Result[map[string]any]{Err: err}) },
	})
	if err != nil {
		return err
	}
	defer w.Cancel()

	// The refetch timer starts once the previous result was printed.
	var tick <-chan time.Time
	for n := 0; cfg.watchCount <= 0 || n < cfg.watchCount; {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-tick:
			tick = nil
			if err := w.Refetch(); err != nil {
				return err
			}
		case res := <-results:
			n++
			if res.Err != nil {
				return res.Err
			}
			if err := out.print(res.Response); err != nil {
				return err
			}
			if cfg.watchInterval > 0 {
				tick = time.After(cfg.watchInterval)
			}
		}
	}
	return nil
}

type printer struct {
	w      io.Writer
	pretty bool
}

func (p *printer) print(resp *graphcall.Response[map[string]any]) error {
	body := struct {
		Data       map[string]any             `json:"data"`
		Errors     []graphcall.OperationError `json:"errors,omitempty"`
		Extensions map[string]any             `json:"extensions,omitempty"`
	}{Data: resp.Data, Errors: resp.Errors}
	if resp.FromCache || resp.FromTransportCache {
		body.Extensions = map[string]any{"fromCache": resp.FromCache, "fromTransportCache": resp.FromTransportCache}
	}
	enc := json.NewEncoder(p.w)
	if p.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(body)
}
