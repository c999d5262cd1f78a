// Package devserver serves the intermediate, source and public roots during
// development and re-runs transformers when watched files change.
package devserver

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/reload"
	smw "git.home.luguber.info/inful/pagebuild/internal/server/middleware"
)

const (
	// MetricsPath serves Prometheus metrics when a registry is configured.
	MetricsPath = "/__metrics"

	defaultDebounce = 300 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// Server is the development HTTP server and file watcher.
type Server struct {
	cfg      *config.Config
	hub      *reload.Hub
	bindings []Binding
	registry *prom.Registry
	logger   *slog.Logger
	addr     string
	debounce time.Duration

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithBindings sets the watch bindings armed by Serve.
func WithBindings(b ...Binding) Option {
	return func(s *Server) { s.bindings = append(s.bindings, b...) }
}

// WithMetrics exposes reg at MetricsPath.
func WithMetrics(reg *prom.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithAddr overrides the listen address derived from server.port.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithDebounce sets the quiet period before a binding runs.
func WithDebounce(d time.Duration) Option {
	return func(s *Server) { s.debounce = d }
}

// New creates a dev server. A nil hub creates one without metrics.
func New(cfg *config.Config, hub *reload.Hub, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		hub:      hub,
		logger:   slog.Default(),
		addr:     fmt.Sprintf(":%d", cfg.Server.Port),
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = reload.NewHub(metrics.NoopRecorder{}, s.logger)
	}
	return s
}

// Handler returns the full request handler: reload endpoints, metrics,
// configured routes and the layered static roots with script injection.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(reload.EventsPath, s.hub)
	mux.Handle(reload.ScriptPath, reload.ScriptHandler())
	if s.registry != nil {
		mux.Handle(MetricsPath, metrics.HTTPHandler(s.registry))
	}
	for prefix, dir := range s.cfg.Server.Routes {
		prefix = "/" + strings.Trim(prefix, "/")
		if prefix == "/" {
			s.logger.Warn("Ignoring route for the site root", slog.String("dir", dir))
			continue
		}
		fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
		mux.Handle(prefix+"/", reload.InjectScript(fs))
	}
	mux.Handle("/", reload.InjectScript(newLayered(
		s.cfg.Build.Temp.String(),
		s.cfg.Build.Src.String(),
		s.cfg.Build.Public.String(),
	)))
	return smw.Chain(s.logger, errors.NewHTTPErrorAdapter(s.logger))(mux)
}

// Listen binds the listener. Serve calls it when it has not been called yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.ServerBindError("failed to bind dev server").
			WithContext("addr", s.addr).
			WithCause(err).
			Build()
	}
	s.ln = ln
	return nil
}

// Close releases a listener bound by Listen when Serve never ran.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil || s.srv != nil {
		return nil
	}
	err := s.ln.Close()
	s.ln = nil
	return err
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve binds, arms the watch bindings and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	w, err := newWatcher(s.bindings, s.debounce, s.logger)
	if err != nil {
		_ = s.ln.Close()
		return err
	}
	defer w.close()
	go w.run(ctx)

	s.mu.Lock()
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 300 * time.Second}
	srv, ln := s.srv, s.ln
	s.mu.Unlock()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	s.logger.Info("Dev server listening",
		slog.String("url", "http://"+displayAddr(ln.Addr())),
		logfields.Port(ln.Addr().(*net.TCPAddr).Port),
		slog.Int("bindings", len(s.bindings)))

	select {
	case <-ctx.Done():
		s.shutdown(srv)
		return nil
	case err, ok := <-serveErr:
		if !ok {
			return nil
		}
		s.hub.Shutdown()
		return errors.WrapError(err, errors.CategoryServer, "dev server stopped").Build()
	}
}

func (s *Server) shutdown(srv *http.Server) {
	s.logger.Info("Shutting down dev server")
	// Event streams never finish on their own.
	s.hub.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", logfields.Error(err))
	}
}

func displayAddr(a net.Addr) string {
	tcp, ok := a.(*net.TCPAddr)
	if !ok || tcp.IP.IsUnspecified() {
		if ok {
			return fmt.Sprintf("localhost:%d", tcp.Port)
		}
		return a.String()
	}
	return tcp.String()
}
