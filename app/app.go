package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/lean-server/config"
	"github.com/searchktools/lean-server/core"
	"github.com/searchktools/lean-server/core/middleware"
	"github.com/searchktools/lean-server/core/pools"
	"github.com/searchktools/lean-server/handlers/static"
	"github.com/searchktools/lean-server/handlers/status"
)

// App wires configuration, logging, runtime tuning and the built-in
// handlers around an engine.
type App struct {
	cfg    *config.Config
	log    zerolog.Logger
	engine *core.Engine
}

// New creates an application instance. Routes may be added through
// Engine until Run is called.
func New(cfg *config.Config) *App {
	return NewWithLogger(cfg, NewLogger(cfg, os.Stderr))
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(cfg *config.Config, log zerolog.Logger) *App {
	prev := pools.ApplyGCConfig(pools.GCConfig{
		GCPercent:   cfg.GCPercent,
		MemoryLimit: cfg.MemoryLimit,
	})
	if cfg.GCPercent != 0 || cfg.MemoryLimit > 0 {
		log.Debug().
			Int("gc_percent", cfg.GCPercent).
			Int("previous_gc_percent", prev.GCPercent).
			Int64("memory_limit", cfg.MemoryLimit).
			Msg("runtime tuned")
	}

	engine := core.NewEngine(cfg, core.WithLogger(log))
	engine.Use(middleware.AccessLog(log))

	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}
}

// NewLogger builds the root logger: human-readable in development, JSON in
// production, at cfg.LogLevel.
func NewLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if !cfg.Production() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log := zerolog.New(w).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	return log.Level(level)
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.log
}

// mount registers the status endpoint and the file server.
func (a *App) mount() {
	if a.cfg.StatusPath != "" {
		a.engine.GET(a.cfg.StatusPath, status.New(a.engine))
	}
	if a.cfg.DocRoot != "" {
		files := static.New(a.cfg.DocRoot,
			static.WithVirtualHosts(a.cfg.VirtualHosts),
			static.WithLogger(a.log),
		)
		a.engine.GET("/*filepath", files)
		a.engine.HEAD("/*filepath", files)
	}
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully within
// ShutdownTimeout. It returns an error when the server could not start or
// did not stop cleanly.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve is Run with the stop signal supplied by ctx.
func (a *App) Serve(ctx context.Context) error {
	a.mount()

	a.log.Info().
		Str("addr", a.cfg.Addr()).
		Str("env", a.cfg.Env).
		Str("doc_root", a.cfg.DocRoot).
		Msg("server starting")

	errc := make(chan error, 1)
	go func() { errc <- a.engine.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("stop requested, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := a.engine.Shutdown(shutdownCtx)

	if err := <-errc; err != nil && !errors.Is(err, core.ErrServerClosed) {
		return err
	}
	return shutdownErr
}
