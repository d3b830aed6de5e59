package core

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/lean-server/core/http"
	"github.com/searchktools/lean-server/core/router"
)

// Connection states
const (
	StateReading int32 = iota
	StateDispatching
	StateWriting
	StateIdle // waiting for the first byte of the next request
	StateClosed
)

// initialReadSize is the read buffer a connection starts with. It grows
// through the byte pool tiers when a line does not fit.
const initialReadSize = 4 << 10

var continueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// After an error response the unread rest of the request is drained for a
// while, so closing does not reset the connection before the client has
// read the response.
const (
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// conn is one accepted socket. It is owned by the goroutine running serve;
// only state and rwc are touched from outside (by Shutdown).
type conn struct {
	id  uint64
	e   *Engine
	rwc net.Conn
	log zerolog.Logger

	state atomic.Int32

	buf        []byte // buf[start:end] holds bytes not yet consumed
	start, end int
	bw         *bufio.Writer
	parser     *http.Parser

	requests  int
	continued bool
	opened    time.Time
}

func (e *Engine) newConn(rwc net.Conn) *conn {
	id := e.nextID.Add(1)
	c := &conn{
		id:     id,
		e:      e,
		rwc:    rwc,
		log:    e.log.With().Uint64("conn_id", id).Str("remote", rwc.RemoteAddr().String()).Logger(),
		buf:    e.bytePool.Get(initialReadSize),
		bw:     e.writerPool.Get(rwc),
		parser: http.NewParser(e.limits),
		opened: time.Now(),
	}
	c.state.Store(StateIdle)
	return c
}

// serve runs the connection until it closes: read a request, dispatch it,
// queue the response, and loop while keep-alive holds.
func (c *conn) serve() {
	c.log.Debug().Msg("connection opened")
	reason := "done"
	defer func() { c.close(reason) }()

	for {
		req, err := c.readRequest()
		if err != nil {
			if pe, ok := http.AsProtocolError(err); ok {
				c.protocolError(pe)
				reason = "protocol error"
				return
			}
			if errors.Is(err, ErrServerClosed) {
				reason = "shutdown"
				return
			}
			reason = closeReason(err)
			if !isConnGone(err) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		c.requests++
		c.state.Store(StateDispatching)
		keepAlive, err := c.dispatch(req)
		if err != nil {
			reason = closeReason(err)
			if !isConnGone(err) {
				c.log.Error().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("response aborted")
				reason = "write error"
			}
			return
		}
		if !keepAlive {
			if err := c.flush(); err != nil {
				reason = closeReason(err)
			}
			return
		}
	}
}

// readRequest parses the next request from the buffer, reading from the
// socket as needed. Queued responses are flushed before any blocking read.
func (c *conn) readRequest() (*http.Request, error) {
	c.parser.Reset()
	c.continued = false

	for {
		if c.end > c.start {
			n, err := c.parser.Parse(c.buf[c.start:c.end])
			c.start += n
			if err != nil {
				return nil, err
			}
			if c.parser.State() == http.StateComplete {
				return c.parser.Request(), nil
			}
		}

		if err := c.fill(); err != nil {
			return nil, err
		}
	}
}

// fill reads more bytes into the buffer. It compacts the buffer first and
// grows it when a single line fills it completely.
func (c *conn) fill() error {
	if c.start > 0 {
		c.end = copy(c.buf, c.buf[c.start:c.end])
		c.start = 0
	}
	if c.end == len(c.buf) {
		c.buf = c.e.bytePool.Grow(c.buf, c.end, 2*len(c.buf))
	}

	if c.bw.Buffered() > 0 {
		if err := c.flush(); err != nil {
			return err
		}
	}
	if c.parser.ExpectsContinue() && !c.continued {
		c.continued = true
		if err := c.writeRaw(continueResponse); err != nil {
			return err
		}
	}

	timeout := c.e.cfg.ReadTimeout
	idle := !c.parser.Started() && c.end == 0
	if idle {
		// Publish idle before checking shutdown, so Shutdown either sees
		// this connection as idle or this check sees Shutdown.
		c.state.Store(StateIdle)
		if c.e.shuttingDown() {
			return ErrServerClosed
		}
		timeout = c.e.cfg.IdleTimeout
	} else {
		c.state.Store(StateReading)
	}
	if err := c.rwc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	n, err := c.rwc.Read(c.buf[c.end:])
	// Shutdown claims an idle connection with Idle -> Closed. Whoever moves
	// the state out of Idle first owns the connection.
	if idle && !c.state.CompareAndSwap(StateIdle, StateReading) {
		return ErrServerClosed
	}
	c.end += n
	if n > 0 {
		return nil
	}
	if err == nil {
		return io.ErrNoProgress
	}
	if err == io.EOF && (c.parser.Started() || c.end > 0) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// dispatch routes req, runs the handler and queues the response. It
// reports whether the connection stays open.
func (c *conn) dispatch(req *http.Request) (bool, error) {
	e := c.e
	keepAlive := !req.WantsClose() && !e.shuttingDown()
	if limit := e.cfg.MaxRequestsPerConnection; limit > 0 && c.requests >= limit {
		keepAlive = false
	}

	var resp *http.Response
	res := e.table.Load().Lookup(req.Method, req.Path)
	switch res.Outcome {
	case router.NoRoute:
		resp = http.ErrorResponse(http.StatusNotFound)
		e.monitor.RecordStatus(http.StatusNotFound)

	case router.MethodNotAllowed:
		resp = http.ErrorResponse(http.StatusMethodNotAllowed)
		resp.Header.Set("Allow", res.AllowHeader())
		e.monitor.RecordStatus(http.StatusMethodNotAllowed)

	case router.Matched:
		ctx := http.NewContext(req, res.Pattern, res.Params)
		if err := res.Handler(ctx); err != nil {
			c.log.Error().Err(err).
				Str("method", req.Method).
				Str("path", req.Path).
				Str("route", res.Pattern).
				Msg("handler error")
			resp = http.ErrorResponse(http.StatusInternalServerError)
			resp.Close = ctx.Written() && ctx.Response().WantsClose()
		} else if resp = ctx.Response(); resp == nil {
			resp = http.NewResponse(http.StatusOK)
		}
	}

	if err := resp.Validate(); err != nil {
		c.log.Error().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("invalid response")
		resp = http.ErrorResponse(http.StatusInternalServerError)
		keepAlive = false
	}
	if resp.WantsClose() {
		keepAlive = false
	}

	c.state.Store(StateWriting)
	if err := c.rwc.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout)); err != nil {
		return false, err
	}
	err := http.WriteResponse(c.bw, req, resp, http.WriteOptions{
		KeepAlive:  keepAlive,
		ServerName: e.cfg.ServerName,
	})
	return keepAlive, err
}

// protocolError answers a framing error and leaves the connection to be
// closed. Responses queued for earlier requests go out first.
func (c *conn) protocolError(pe *http.ProtocolError) {
	c.e.monitor.ProtocolError()
	c.e.monitor.RecordStatus(pe.Status())
	c.log.Info().
		Str("kind", pe.Kind.String()).
		Int("status", pe.Status()).
		Str("detail", pe.Detail).
		Msg("protocol error")

	if err := c.rwc.SetWriteDeadline(time.Now().Add(c.e.cfg.WriteTimeout)); err != nil {
		return
	}
	resp := http.ErrorResponse(pe.Status())
	if err := http.WriteResponse(c.bw, nil, resp, http.WriteOptions{ServerName: c.e.cfg.ServerName}); err != nil {
		return
	}
	if err := c.bw.Flush(); err != nil {
		return
	}
	c.linger()
}

// linger half-closes the socket and discards input until the peer closes
// or lingerTimeout passes.
func (c *conn) linger() {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := c.rwc.(closeWriter); ok {
		cw.CloseWrite()
	}
	c.rwc.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.CopyN(io.Discard, c.rwc, maxLingerBytes)
}

func (c *conn) flush() error {
	if err := c.rwc.SetWriteDeadline(time.Now().Add(c.e.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *conn) writeRaw(p []byte) error {
	if err := c.rwc.SetWriteDeadline(time.Now().Add(c.e.cfg.WriteTimeout)); err != nil {
		return err
	}
	_, err := c.rwc.Write(p)
	return err
}

// close releases everything the connection holds. Safe to race with
// Shutdown closing rwc.
func (c *conn) close(reason string) {
	c.state.Store(StateClosed)
	c.rwc.Close()

	c.e.conns.Delete(c.id)
	c.e.bytePool.Put(c.buf)
	c.e.writerPool.Put(c.bw)
	c.buf, c.bw = nil, nil

	c.e.live.Add(-1)
	c.e.monitor.ConnClosed()
	c.log.Debug().
		Str("reason", reason).
		Int("requests", c.requests).
		Dur("lifetime", time.Since(c.opened)).
		Msg("connection closed")
}
