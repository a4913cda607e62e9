// Package app wires the drumcoach subsystems into a running HTTP service.
//
// The App owns the full lifecycle: New assembles the session manager, the
// HTTP routes and the config watcher, Run serves until the context ends, and
// Shutdown stops the running session and the server in order.
//
// For testing, inject test doubles via functional options (WithRegistry,
// WithMetrics, etc.) and drive the routes through [App.Handler].
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/drumcoach/internal/config"
	"github.com/MrWong99/drumcoach/internal/feed"
	"github.com/MrWong99/drumcoach/internal/health"
	"github.com/MrWong99/drumcoach/internal/observe"
	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/session"
	"github.com/MrWong99/drumcoach/pkg/audio"
)

// stopTimeout bounds how long Shutdown waits for the running session.
const stopTimeout = 5 * time.Second

// App owns the HTTP surface and the session manager.
type App struct {
	cfg      *config.Config
	watcher  *config.Watcher
	registry *config.Registry
	metrics  *observe.Metrics
	provider *observe.Provider
	level    *slog.LevelVar
	listener net.Listener

	manager *SessionManager
	handler http.Handler
	server  *http.Server

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithWatcher makes sessions use the watcher's current config and applies
// reloads while the app runs.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithRegistry sets the audio source registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics recorded by sessions and the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithProvider serves /metrics from the provider's Prometheus registry.
// Without it the default Prometheus registry is served.
func WithProvider(p *observe.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithLogLevel sets the level variable a log level reload updates.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithListener serves on l instead of listening on the configured address.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New creates an App from cfg. With a watcher, cfg is only the fallback for
// settings read before the first reload.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Level())
	}

	a.manager = NewSessionManager(SessionManagerConfig{
		Config:   a.currentConfig,
		Registry: a.registry,
		Metrics:  a.metrics,
	})
	a.handler = observe.Middleware(a.metrics)(a.routes())
	return a, nil
}

// Manager returns the session manager.
func (a *App) Manager() *SessionManager { return a.manager }

// Handler returns the HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) currentConfig() *config.Config {
	if a.watcher != nil {
		if c := a.watcher.Current(); c != nil {
			return c
		}
	}
	return a.cfg
}

// OnConfigChange applies a reloaded config. The log level changes at once;
// tuning changes reach the next session through the watcher.
func (a *App) OnConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ListenAddrChanged {
		slog.Warn("server.listen_addr changed; restart to apply", "listen_addr", new.Server.ListenAddr)
	}
	if d.TuningChanged() {
		slog.Info("configuration applies to the next session", "sections", d.Sections())
	}
}

// Run serves HTTP and polls the config watcher until ctx is cancelled or the
// server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	l := a.listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.currentConfig().Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
	}
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", l.Addr().String())
		if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), stopTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the running session, then the HTTP server and the watcher.
// Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		if a.manager.IsActive() {
			if _, err := a.manager.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				errs = append(errs, err)
			}
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
			}
		}
		if a.watcher != nil {
			a.watcher.Stop()
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// ─── Routes ──────────────────────────────────────────────────────────────────

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	health.New(
		health.Checker{Name: "config", Check: a.checkConfig},
		health.Checker{Name: "input", Check: a.manager.CheckInput},
	).Register(mux)

	if a.provider != nil {
		mux.Handle("GET /metrics", a.provider.Handler())
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /api/presets", a.handlePresets)
	mux.HandleFunc("POST /api/session", a.handleStart)
	mux.HandleFunc("DELETE /api/session", a.handleStop)
	mux.HandleFunc("GET /api/session", a.handleStatus)
	mux.HandleFunc("POST /api/session/hits", a.handleTap)
	mux.Handle("GET /api/session/events", feed.NewHandler(a.manager))
	return mux
}

func (a *App) checkConfig(context.Context) error {
	return config.Validate(a.currentConfig())
}

type presetView struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BPM         int               `json:"bpm,omitempty"`
	Pattern     map[string]string `json:"pattern,omitempty"`
	Notes       []schedule.Entry  `json:"notes,omitempty"`
}

func (a *App) handlePresets(w http.ResponseWriter, _ *http.Request) {
	presets := schedule.Presets()
	out := make([]presetView, 0, len(presets))
	for _, p := range presets {
		v := presetView{Name: p.Name, Description: p.Description, BPM: p.BPM, Notes: p.Entries}
		if len(p.Pattern) > 0 {
			v.Pattern = schedule.FormatPattern(p.Pattern)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	info, err := a.manager.Start(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, info)
	case errors.Is(err, ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, audio.ErrNoInput):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := a.manager.Stop(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, ErrNoSession):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type statusView struct {
	Info   SessionInfo    `json:"info"`
	Result session.Result `json:"result"`
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	res, err := a.manager.Result()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{Info: a.manager.Info(), Result: res})
}

type tapRequest struct {
	Instrument string `json:"instrument"`
}

func (a *App) handleTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	inst, err := schedule.ParseInstrument(req.Instrument)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch err := a.manager.Tap(inst); {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, ErrNoSession):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusServiceUnavailable, err)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
