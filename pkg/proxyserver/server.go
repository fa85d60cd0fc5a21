// Package proxyserver assembles the gateway: middleware, dispatcher, CMS
// proxies, local extensions and the app server.
package proxyserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ideamans/cmsgate/pkg/appserver"
	"github.com/ideamans/cmsgate/pkg/config"
	"github.com/ideamans/cmsgate/pkg/credential"
	"github.com/ideamans/cmsgate/pkg/dispatch"
	"github.com/ideamans/cmsgate/pkg/extension"
	"github.com/ideamans/cmsgate/pkg/httpx"
	"github.com/ideamans/cmsgate/pkg/metrics"
	"github.com/ideamans/cmsgate/pkg/proxy"
	"github.com/ideamans/cmsgate/pkg/ratelimit"
	"github.com/ideamans/cmsgate/pkg/shared/kvs"
	"github.com/ideamans/cmsgate/pkg/shared/logging"
	"github.com/ideamans/cmsgate/pkg/upstream"
)

// Options carries what does not come from the configuration file.
type Options struct {
	Version string
	Logger  logging.Logger
	// Transport overrides the transport used for CMS calls (tests).
	Transport http.RoundTripper
}

// Server is an assembled gateway.
type Server struct {
	cfg        *config.Config
	handler    http.Handler
	dispatcher *dispatch.Dispatcher
	extensions *extension.Registry
	health     *httpx.Health
	metrics    *metrics.Metrics
	static     *appserver.Static
	store      kvs.Store
	logger     logging.Logger
}

// New builds the gateway described by cfg. cfg must already be validated.
func New(cfg *config.Config, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewSimpleLogger("proxyserver", logging.LevelInfo, true)
	}

	target, err := cfg.Target()
	if err != nil {
		return nil, err
	}
	if target.WeakKey() {
		logger.Warn("Access key is short, redaction may alter unrelated response content",
			"min_length", upstream.MinRecommendedKeyLength)
	}
	injector := credential.NewInjector(target)

	s := &Server{
		cfg:     cfg,
		health:  httpx.NewHealth(),
		metrics: metrics.New(),
		logger:  logger,
	}

	admin := proxy.NewAdminProxy(target, proxy.AdminOptions{
		HeaderTimeout:         cfg.Upstream.HeaderTimeout.Duration(),
		TrustForwardedHeaders: cfg.Server.TrustForwardedHeaders,
		Transport:             opts.Transport,
		Logger:                logger.WithModule("admin-proxy"),
		Recorder:              s.metrics,
	})
	api := proxy.NewAPIProxy(target, injector, proxy.APIOptions{
		Timeout:               cfg.Upstream.Timeout.Duration(),
		MaxResponseBytes:      cfg.Upstream.MaxResponseBytes,
		TrustForwardedHeaders: cfg.Server.TrustForwardedHeaders,
		Transport:             opts.Transport,
		Logger:                logger.WithModule("api-proxy"),
		Recorder:              s.metrics,
	})

	s.extensions = extension.NewRegistry()
	extension.RegisterBuiltins(s.extensions, extension.RuntimeInfo{
		Mode:     cfg.Mode(),
		Version:  opts.Version,
		Upstream: target.Origin(),
	})

	apiChain := dispatch.NewChain(
		[]dispatch.Step{api, s.extensions},
		dispatch.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		dispatch.WithChainLogger(logger.WithModule("chain")),
	)

	app, err := appserver.New(cfg.App, cfg.Server.Dev, logger.WithModule("app"))
	if err != nil {
		return nil, err
	}
	if static, ok := app.(*appserver.Static); ok {
		s.static = static
	}

	s.dispatcher = dispatch.New(dispatch.DefaultTable(), dispatch.Handlers{
		Admin: admin,
		API:   apiChain,
		App:   app,
	}, dispatch.WithObserver(s.metrics), dispatch.WithLogger(logger.WithModule("dispatch")))

	mws := []httpx.Middleware{
		httpx.Recover(logger.WithModule("recover")),
		s.metrics.WithLatencyTracking,
		httpx.RequestLogger(logger.WithModule("server")),
		s.health.Wrap,
	}
	if cfg.Server.Dev {
		mws = append(mws, httpx.DevCORS())
	}

	if cfg.RateLimit.Rate > 0 {
		store, err := kvs.New(cfg.RateLimit.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limit store: %w", err)
		}
		limits := cfg.RateLimit.Limiter()
		mw, err := ratelimit.NewMiddleware(limits, ratelimit.NewLimiter(limits.Rate, limits.Interval, store), logger.WithModule("ratelimit"))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		s.store = store
		mws = append(mws, mw.Wrap)
	}

	s.handler = httpx.Chain(s.dispatcher, mws...)

	logger.Debug("Gateway assembled", "mode", cfg.Mode(), "upstream", target.String())
	return s, nil
}

// Handler returns the public handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Dispatcher returns the request dispatcher.
func (s *Server) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Extensions returns the local endpoint registry.
func (s *Server) Extensions() *extension.Registry { return s.extensions }

// Health returns the probe state.
func (s *Server) Health() *httpx.Health { return s.health }

// Metrics returns the collectors.
func (s *Server) Metrics() *metrics.Metrics { return s.metrics }

// Serve runs the public listener, and the metrics listener when configured,
// until ctx is done. It then marks the server as draining and shuts down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	public := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	servers := []*http.Server{public}
	errCh := make(chan error, 2)

	go func() { errCh <- serve(public, ln) }()
	s.logger.Info("Listening", "addr", ln.Addr().String(), "mode", s.cfg.Mode())

	if s.cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
		metricsSrv := &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		servers = append(servers, metricsSrv)
		go func() { errCh <- serve(metricsSrv, nil) }()
		s.logger.Info("Metrics listening", "addr", s.cfg.Metrics.Addr, "path", s.cfg.Metrics.Path)
	}

	if s.static != nil && s.cfg.App.Watch {
		go func() {
			if err := s.static.Watch(ctx); err != nil {
				s.logger.Warn("Bundle watcher stopped", "error", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested, draining")
	case runErr = <-errCh:
		if runErr != nil {
			s.logger.Error("Listener failed", "error", runErr)
		}
	}

	s.health.SetDraining()
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Duration())
	defer done()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server shutdown error", "error", err)
			runErr = errors.Join(runErr, err)
		}
	}

	s.logger.Info("Server stopped")
	return runErr
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Close releases the rate limit store.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func serve(srv *http.Server, ln net.Listener) error {
	var err error
	if ln != nil {
		err = srv.Serve(ln)
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
