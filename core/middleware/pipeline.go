package middleware

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/lean-server/core/http"
	"github.com/searchktools/lean-server/core/observability"
)

// Middleware wraps a handler.
type Middleware func(next http.HandlerFunc) http.HandlerFunc

// Pipeline is an ordered middleware chain. The first middleware added is
// the outermost.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates a new middleware pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]Middleware, 0, 8),
	}
}

// Use adds a middleware to the pipeline
func (p *Pipeline) Use(m ...Middleware) *Pipeline {
	p.middlewares = append(p.middlewares, m...)
	return p
}

// Len returns the number of middlewares.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Middlewares returns a copy of the chain.
func (p *Pipeline) Middlewares() []Middleware {
	return append([]Middleware(nil), p.middlewares...)
}

// Then composes the pipeline around h.
func (p *Pipeline) Then(h http.HandlerFunc) http.HandlerFunc {
	// Fast path: no middlewares
	if len(p.middlewares) == 0 {
		return h
	}
	for i := len(p.middlewares) - 1; i >= 0; i-- {
		h = p.middlewares[i](h)
	}
	return h
}

// Before runs fn ahead of the handler. If fn returns an error or aborts the
// context, the handler is skipped.
func Before(fn func(c *http.Context) error) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(c *http.Context) error {
			if err := fn(c); err != nil {
				return err
			}
			if c.IsAborted() {
				return nil
			}
			return next(c)
		}
	}
}

// Common middleware implementations

// Recover turns a handler panic into an error so the connection answers
// 500 and stays usable.
func Recover(log zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(c *http.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("method", c.Method()).
						Str("path", c.Path()).
						Interface("panic", r).
						Bytes("stack", debug.Stack()).
						Msg("panic recovered")
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(c)
		}
	}
}

// AccessLog writes one event per request.
func AccessLog(log zerolog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(c *http.Context) error {
			start := time.Now()
			err := next(c)

			status := c.FinalStatus(err)
			ev := log.Info()
			if status >= 500 {
				ev = log.Warn()
			}
			ev.Str("method", c.Method()).
				Str("path", c.Path()).
				Str("route", c.Route()).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request")
			return err
		}
	}
}

// Metrics records per-route counters on mon.
func Metrics(mon *observability.Monitor) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(c *http.Context) error {
			start := time.Now()
			err := next(c)
			mon.RecordRequest(c.Method()+" "+c.Route(), c.FinalStatus(err), time.Since(start))
			return err
		}
	}
}

// RequestID adds a unique X-Request-ID response header, reusing the
// client's value when it sent one.
func RequestID() Middleware {
	var counter atomic.Uint64

	return Before(func(c *http.Context) error {
		id := c.Header("X-Request-ID")
		if id == "" {
			id = strconv.FormatUint(counter.Add(1), 10)
		}
		c.SetHeader("X-Request-ID", id)
		return nil
	})
}
