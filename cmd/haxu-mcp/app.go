package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/hession/haxu-mcp/internal/charcount"
	"github.com/hession/haxu-mcp/internal/config"
	"github.com/hession/haxu-mcp/internal/lawdb"
	"github.com/hession/haxu-mcp/internal/logger"
	"github.com/hession/haxu-mcp/internal/mcp"
	"github.com/hession/haxu-mcp/internal/pricing"
	"github.com/hession/haxu-mcp/internal/telemetry"
	"github.com/hession/haxu-mcp/internal/tools"
	"github.com/hession/haxu-mcp/internal/upstream"
	"github.com/hession/haxu-mcp/internal/vectorsearch"
	"github.com/hession/haxu-mcp/internal/weather"
)

const shutdownTimeout = 10 * time.Second

// app holds the long-lived clients and stores behind the tool modules.
type app struct {
	cfg     *config.Config
	deps    tools.Deps
	closers []func() error
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// initLogger starts the file logger described by cfg.Log.
func initLogger(cfg *config.Config) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	return logger.Init(logger.Config{
		LogDir:     config.LogDir(),
		Prefix:     logger.DefaultPrefix,
		Level:      level,
		MaxDays:    cfg.Log.MaxDays,
		ConsoleOut: cfg.Log.Console,
	})
}

// newApp builds the dependencies of every enabled module. Clients are
// created once and shared by all calls.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	shared := upstream.New(cfg.HTTP.UserAgent, seconds(cfg.HTTP.TimeoutSeconds))

	if cfg.HasModule("legal") {
		store, err := openLaws(ctx, cfg.Legal)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.deps.Laws = store
		a.closers = append(a.closers, store.Close)
	}

	if cfg.HasModule("weather") {
		a.deps.Weather = weather.New(cfg.Weather.BaseURL, shared.WithTimeout(seconds(cfg.Weather.TimeoutSeconds)))
	}

	if cfg.HasModule("pricing") {
		a.deps.Pricing = pricing.New(cfg.Pricing.BaseURL, cfg.Pricing.APIVersion, cfg.Pricing.MaxPages,
			shared.WithTimeout(seconds(cfg.Pricing.TimeoutSeconds)))
	}

	if cfg.HasModule("charcount") {
		a.deps.CharCount = charcount.NewClient(cfg.CharCount.Endpoint, shared.WithTimeout(seconds(cfg.CharCount.TimeoutSeconds)))
	}

	if cfg.HasModule("semantic") {
		searcher, closer, err := newSearcher(cfg.Semantic, shared)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.deps.Searcher = searcher
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	return a, nil
}

// openLaws opens the legal store and seeds an empty one, from the configured
// corpus when there is one and from the built-in articles otherwise.
func openLaws(ctx context.Context, cfg config.LegalConfig) (*lawdb.Store, error) {
	store, err := lawdb.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open legal store: %w", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to count legal provisions: %w", err)
	}
	if count > 0 {
		return store, nil
	}

	source := cfg.CorpusPath
	var n int
	if source == "" {
		source = "built-in corpus"
		n, err = store.Seed(ctx)
	} else {
		n, err = store.Import(ctx, cfg.CorpusPath)
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to import legal corpus: %w", err)
	}
	logger.Info("Imported %d legal provisions from %s", n, source)
	return store, nil
}

func newEmbedder(cfg config.SemanticConfig, client *upstream.Client) (*vectorsearch.AzureOpenAIEmbedder, error) {
	return vectorsearch.NewAzureOpenAIEmbedder(vectorsearch.AzureEmbeddingConfig{
		Endpoint:   cfg.AzureEndpoint,
		APIKey:     cfg.AzureAPIKey,
		Deployment: cfg.Deployment,
		APIVersion: cfg.AzureAPIVersion,
		MaxRetries: cfg.MaxRetries,
	}, client)
}

// newSearcher wires the embedder to the configured match backend.
func newSearcher(cfg config.SemanticConfig, client *upstream.Client) (*vectorsearch.Searcher, func() error, error) {
	embedder, err := newEmbedder(cfg, client)
	if err != nil {
		return nil, nil, err
	}

	var matcher vectorsearch.Matcher
	var closer func() error
	switch cfg.Backend {
	case "supabase":
		m, err := vectorsearch.NewSupabaseMatcher(cfg.SupabaseURL, cfg.SupabaseKey, client)
		if err != nil {
			return nil, nil, err
		}
		matcher = m
	case "sqlite":
		m, err := vectorsearch.OpenSQLiteMatcher(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		matcher, closer = m, m.Close
	default:
		return nil, nil, fmt.Errorf("unknown semantic backend: %s", cfg.Backend)
	}

	return vectorsearch.NewSearcher(embedder, matcher, cfg.Threshold, cfg.Count), closer, nil
}

// Dispatcher builds the registry for the enabled modules and attaches the
// telemetry observer.
func (a *app) Dispatcher() (*tools.Dispatcher, error) {
	registry, err := tools.BuildRegistry(a.deps, a.cfg.Server.Modules)
	if err != nil {
		return nil, err
	}

	observer, err := telemetry.NewToolObserver(
		otel.GetMeterProvider().Meter(telemetry.Scope),
		otel.GetTracerProvider().Tracer(telemetry.Scope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool observer: %w", err)
	}
	return tools.NewDispatcher(registry, tools.WithObserver(observer)), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource: %v", err)
		}
	}
	a.closers = nil
}

// newMux mounts the enabled transports of server.
func newMux(server *mcp.Server, cfg config.ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	for _, transport := range cfg.Transports {
		switch transport {
		case "sse":
			mcp.NewSSEHandler(server).Register(mux)
		case "ws":
			mcp.NewWSHandler(server, cfg.OriginPatterns...).Register(mux)
		}
	}
	return mux
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if l := logger.GetDefault(); l != nil {
		srv.ErrorLog = log.New(l.GetWriter(logger.ERROR), "", 0)
	}
	return srv
}

// serveUntilDone runs srv until ctx ends, then calls drain and shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server, drain func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if drain != nil {
			if err := drain(shutdownCtx); err != nil {
				logger.Warn("Drain did not finish: %v", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runServe starts the tool server with every configured transport.
func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, err := a.Dispatcher()
	if err != nil {
		return err
	}

	server := mcp.NewServer(dispatcher, mcp.Implementation{Name: cfg.Server.Name, Version: version})
	names := make([]string, 0, dispatcher.Registry().Count())
	for _, t := range dispatcher.Registry().List() {
		names = append(names, t.Name())
	}
	logger.Info("Serving %d tools over %s: %s", len(names), strings.Join(cfg.Server.Transports, ","), strings.Join(names, ", "))

	srv := newHTTPServer(cfg.Server.Addr, newMux(server, cfg.Server))
	return serveUntilDone(ctx, srv, server.Shutdown)
}

func newFunctionMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(charcount.Route, charcount.Handler)
	return mux
}

// runFunction serves the character counting function on its own.
func runFunction(ctx context.Context, cfg *config.Config) error {
	return serveUntilDone(ctx, newHTTPServer(cfg.Function.Addr, newFunctionMux()), nil)
}

// localURL turns a listen address into a URL a local client can dial.
func localURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
