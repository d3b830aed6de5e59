package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/searchktools/lean-server/config"
	"github.com/searchktools/lean-server/core/http"
	"github.com/searchktools/lean-server/core/middleware"
	"github.com/searchktools/lean-server/core/observability"
	"github.com/searchktools/lean-server/core/pools"
	"github.com/searchktools/lean-server/core/router"
)

// shutdownPollInterval is how often Shutdown looks for idle connections.
const shutdownPollInterval = 50 * time.Millisecond

// Engine is an HTTP/1.1 server: it accepts connections, runs one goroutine
// per connection and dispatches requests through a route table built once
// at Serve time.
type Engine struct {
	cfg     *config.Config
	limits  http.Limits
	log     zerolog.Logger
	monitor *observability.Monitor

	routes   *router.Builder
	pipeline *middleware.Pipeline
	table    atomic.Pointer[router.Table]

	bytePool   *pools.BytePool
	writerPool *pools.WriterPool

	frozen     atomic.Bool
	inShutdown atomic.Bool

	mu sync.Mutex
	ln net.Listener

	live   atomic.Int64
	nextID atomic.Uint64
	conns  *xsync.MapOf[uint64, *conn]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMonitor shares a monitor, for example with a status handler that is
// registered before the engine exists.
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// NewEngine creates an engine for cfg. cfg must not change afterwards.
func NewEngine(cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		limits:     limitsFor(cfg),
		log:        zerolog.Nop(),
		routes:     router.NewBuilder(),
		pipeline:   middleware.NewPipeline(),
		bytePool:   pools.NewBytePool(),
		writerPool: pools.NewWriterPool(pools.DefaultWriterSize),
		conns:      xsync.NewMapOf[uint64, *conn](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.monitor == nil {
		e.monitor = observability.NewMonitor()
	}
	return e
}

func limitsFor(cfg *config.Config) http.Limits {
	return http.Limits{
		MaxHeaderBytes:     cfg.MaxHeaderBytes,
		MaxHeaderCount:     cfg.MaxHeaderCount,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		PassUnknownMethods: cfg.UnknownMethods == config.UnknownMethodsPass,
		BodylessMethods:    cfg.BodylessMethods,
		KeepTrailers:       cfg.KeepTrailers,
	}
}

// Route registration. Registering after Serve has been called panics with
// ErrRoutesFrozen.

func (e *Engine) mustBeOpen() {
	if e.frozen.Load() {
		panic(ErrRoutesFrozen)
	}
}

// Handle registers a handler for method and pattern.
func (e *Engine) Handle(method, pattern string, h http.HandlerFunc) {
	e.mustBeOpen()
	e.routes.Add(method, pattern, h)
}

// GET registers a GET route
func (e *Engine) GET(pattern string, h http.HandlerFunc) { e.Handle(http.MethodGet, pattern, h) }

// HEAD registers a HEAD route
func (e *Engine) HEAD(pattern string, h http.HandlerFunc) { e.Handle(http.MethodHead, pattern, h) }

// POST registers a POST route
func (e *Engine) POST(pattern string, h http.HandlerFunc) { e.Handle(http.MethodPost, pattern, h) }

// PUT registers a PUT route
func (e *Engine) PUT(pattern string, h http.HandlerFunc) { e.Handle(http.MethodPut, pattern, h) }

// PATCH registers a PATCH route
func (e *Engine) PATCH(pattern string, h http.HandlerFunc) { e.Handle(http.MethodPatch, pattern, h) }

// DELETE registers a DELETE route
func (e *Engine) DELETE(pattern string, h http.HandlerFunc) { e.Handle(http.MethodDelete, pattern, h) }

// OPTIONS registers an OPTIONS route
func (e *Engine) OPTIONS(pattern string, h http.HandlerFunc) { e.Handle(http.MethodOptions, pattern, h) }

// Use appends middlewares. They wrap every route handler, inside the
// engine's own metrics and panic recovery.
func (e *Engine) Use(m ...middleware.Middleware) {
	e.mustBeOpen()
	e.pipeline.Use(m...)
}

// Monitor returns the engine's metrics.
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

// Routes lists the registered routes. Empty until Serve has built the
// table.
func (e *Engine) Routes() []router.RouteInfo {
	t := e.table.Load()
	if t == nil {
		return nil
	}
	return t.Routes()
}

// freeze builds the route table. It runs once, on the first Serve.
func (e *Engine) freeze() error {
	if !e.frozen.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}

	chain := middleware.NewPipeline().
		Use(middleware.Metrics(e.monitor), middleware.Recover(e.log)).
		Use(e.pipeline.Middlewares()...)
	e.routes.Wrap(chain.Then)

	table, err := e.routes.Build()
	if err != nil {
		return fmt.Errorf("core: invalid routes: %w", err)
	}
	e.table.Store(table)
	return nil
}

// ListenAndServe binds the configured address and serves on it.
func (e *Engine) ListenAndServe() error {
	lc := listenConfig(e.cfg.ReusePort)
	ln, err := lc.Listen(context.Background(), "tcp", e.cfg.Addr())
	if err != nil {
		return fmt.Errorf("core: listen %s: %w", e.cfg.Addr(), err)
	}
	return e.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It always returns a
// non-nil error; after Shutdown that is ErrServerClosed. ln is closed on
// return.
func (e *Engine) Serve(ln net.Listener) error {
	if err := e.freeze(); err != nil {
		ln.Close()
		return err
	}

	e.mu.Lock()
	if e.inShutdown.Load() {
		e.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	e.ln = ln
	e.mu.Unlock()
	defer ln.Close()

	e.log.Info().
		Str("addr", ln.Addr().String()).
		Int("routes", len(e.Routes())).
		Int("max_connections", e.cfg.MaxConnections).
		Msg("listening")

	var tempDelay time.Duration
	for {
		rwc, err := ln.Accept()
		if err != nil {
			if e.shuttingDown() {
				return ErrServerClosed
			}
			if isListenerGone(err) {
				return fmt.Errorf("core: accept: %w", err)
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := time.Second; tempDelay > max {
				tempDelay = max
			}
			e.log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("accept error")
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		if !e.admit(rwc) {
			continue
		}

		c := e.newConn(rwc)
		e.conns.Store(c.id, c)
		go c.serve()
	}
}

// admit enforces max_connections. A refused socket is closed before
// anything is read from or written to it.
func (e *Engine) admit(rwc net.Conn) bool {
	if e.live.Add(1) > int64(e.cfg.MaxConnections) {
		e.live.Add(-1)
		e.monitor.ConnRejected()
		e.log.Warn().
			Str("remote", rwc.RemoteAddr().String()).
			Int("max_connections", e.cfg.MaxConnections).
			Msg("connection rejected")
		rwc.Close()
		return false
	}
	if err := tuneConn(rwc); err != nil {
		e.log.Debug().Err(err).Msg("socket options not applied")
	}
	e.monitor.ConnAccepted()
	return true
}

func (e *Engine) shuttingDown() bool {
	return e.inShutdown.Load()
}

// Addr returns the listener address, or nil before Serve.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Shutdown stops accepting, lets in-flight requests finish and closes idle
// connections as they become idle. When ctx ends first the remaining
// connections are closed and ctx.Err() is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.inShutdown.Store(true)

	e.mu.Lock()
	var lnErr error
	if e.ln != nil {
		lnErr = e.ln.Close()
		if errors.Is(lnErr, net.ErrClosed) {
			lnErr = nil
		}
	}
	e.mu.Unlock()

	e.log.Info().Int64("connections", e.live.Load()).Msg("shutting down")

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if e.closeIdle() {
			e.log.Info().Msg("shutdown complete")
			return lnErr
		}
		select {
		case <-ctx.Done():
			n := e.closeAll()
			e.log.Warn().Int("connections", n).Msg("shutdown deadline reached, closing connections")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// closeIdle closes connections waiting for a request and reports whether
// none are left.
func (e *Engine) closeIdle() bool {
	e.conns.Range(func(_ uint64, c *conn) bool {
		if c.state.CompareAndSwap(StateIdle, StateClosed) {
			c.rwc.Close()
		}
		return true
	})
	return e.live.Load() == 0
}

func (e *Engine) closeAll() int {
	n := 0
	e.conns.Range(func(_ uint64, c *conn) bool {
		c.rwc.Close()
		n++
		return true
	})
	return n
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Connections int64                  `json:"connections"`
	Tracked     int                    `json:"tracked"`
	Monitor     observability.Snapshot `json:"monitor"`
	ReadBuffers pools.BytePoolStats    `json:"read_buffers"`
	Writers     pools.WriterPoolStats  `json:"writers"`
	GC          pools.GCStats          `json:"gc"`
}

// Stats returns current engine statistics
func (e *Engine) Stats() Stats {
	return Stats{
		Connections: e.live.Load(),
		Tracked:     e.conns.Size(),
		Monitor:     e.monitor.Snapshot(),
		ReadBuffers: e.bytePool.Stats(),
		Writers:     e.writerPool.Stats(),
		GC:          pools.GetGCStats(),
	}
}
