package core

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/searchktools/lean-server/config"
	"github.com/searchktools/lean-server/core/http"
	"github.com/searchktools/lean-server/core/middleware"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.ReadTimeout = 2 * time.Second
	cfg.WriteTimeout = 2 * time.Second
	cfg.IdleTimeout = 2 * time.Second
	return cfg
}

// startEngine serves e on a loopback port and shuts it down when the test
// ends. It returns the address and the channel Serve's result arrives on.
func startEngine(t *testing.T, e *Engine) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		e.Shutdown(ctx)
	})
	return ln.Addr().String(), done
}

func newTestEngine(t *testing.T, cfg *config.Config) (*Engine, string) {
	t.Helper()
	e := NewEngine(cfg)
	e.GET("/", func(c *http.Context) error {
		return c.String(http.StatusOK, "Hello, World!")
	})
	e.GET("/items", func(c *http.Context) error {
		return c.String(http.StatusOK, "items")
	})
	e.GET("/users/:id", func(c *http.Context) error {
		return c.String(http.StatusOK, "user "+c.Param("id"))
	})
	e.POST("/echo", func(c *http.Context) error {
		return c.Bytes(http.StatusOK, c.Body())
	})
	e.GET("/fail", func(c *http.Context) error {
		return errors.New("storage unavailable")
	})
	e.GET("/panic", func(c *http.Context) error {
		panic("boom")
	})
	addr, _ := startEngine(t, e)
	return e, addr
}

type client struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return &client{t: t, conn: conn, br: bufio.NewReader(conn)}
}

func (c *client) send(raw string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, raw)
	require.NoError(c.t, err)
}

func (c *client) read() (*nethttp.Response, string) {
	c.t.Helper()
	resp, err := nethttp.ReadResponse(c.br, nil)
	require.NoError(c.t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	resp.Body.Close()
	return resp, string(body)
}

// expectClosed asserts the server closes the connection without sending
// anything more.
func (c *client) expectClosed() {
	c.t.Helper()
	n, err := c.br.Read(make([]byte, 1))
	assert.Equal(c.t, 0, n)
	assert.Error(c.t, err)
}

func TestEngineKeepAlive(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello, World!", body)
	assert.Equal(t, "13", resp.Header.Get("Content-Length"))
	assert.False(t, resp.Close)

	c.send("GET /users/42 HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body = c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "user 42", body)

	c.send("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n")
	resp, _ = c.read()
	assert.True(t, resp.Close)
	c.expectClosed()
}

func TestEngineHTTP10ClosesByDefault(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("GET / HTTP/1.0\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello, World!", body)
	c.expectClosed()
}

func TestEngineNotFoundAndMethodNotAllowed(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("GET /other HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 404, resp.StatusCode)
	assert.Contains(t, body, "Not Found")

	c.send("POST /items HTTP/1.1\r\nHost: x\r\nContent-Length: 0\r\n\r\n")
	resp, _ = c.read()
	assert.Equal(t, 405, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("Allow"))
	assert.False(t, resp.Close)
}

func TestEnginePayloadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 10
	_, addr := newTestEngine(t, cfg)
	c := dial(t, addr)

	c.send("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\n")
	resp, _ := c.read()
	assert.Equal(t, 413, resp.StatusCode)
	assert.True(t, resp.Close)
	c.expectClosed()
}

func TestEngineProtocolErrors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
	}{
		{"garbage request line", "GARBAGE\r\n\r\n", 400},
		{"missing host", "GET / HTTP/1.1\r\n\r\n", 400},
		{"unknown method", "BREW / HTTP/1.1\r\nHost: x\r\n\r\n", 501},
		{"body on GET", "GET / HTTP/1.1\r\nHost: x\r\nContent-Length: 3\r\n\r\nabc", 400},
	}

	_, addr := newTestEngine(t, testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dial(t, addr)
			c.send(tt.raw)
			resp, _ := c.read()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.True(t, resp.Close)
			c.expectClosed()
		})
	}
}

func TestEngineHeadersTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHeaderBytes = 1024
	_, addr := newTestEngine(t, cfg)
	c := dial(t, addr)

	c.send("GET / HTTP/1.1\r\nHost: x\r\nX-Big: " + strings.Repeat("a", 8<<10) + "\r\n\r\n")
	resp, _ := c.read()
	assert.Equal(t, 431, resp.StatusCode)
}

func TestEngineGrowsReadBuffer(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	long := strings.Repeat("b", 6<<10)
	c.send("GET /users/" + long + " HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "user "+long, body)
}

func TestEnginePipelining(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("GET /users/1 HTTP/1.1\r\nHost: x\r\n\r\n" +
		"POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello" +
		"GET /users/3 HTTP/1.1\r\nHost: x\r\n\r\n")

	for _, want := range []string{"user 1", "hello", "user 3"} {
		resp, body := c.read()
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, want, body)
	}
}

func TestEngineChunkedRequest(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("POST /echo HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello world", body)
}

func TestEngineExpectContinue(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	c.send("POST /echo HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 4\r\n\r\n")
	line, err := c.br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 100 Continue\r\n", line)
	line, err = c.br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "\r\n", line)

	c.send("ping")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ping", body)
}

func TestEngineHandlerErrorKeepsConnection(t *testing.T) {
	_, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)

	for _, path := range []string{"/fail", "/panic"} {
		c.send("GET " + path + " HTTP/1.1\r\nHost: x\r\n\r\n")
		resp, _ := c.read()
		assert.Equal(t, 500, resp.StatusCode, path)
		assert.False(t, resp.Close, path)
	}

	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Hello, World!", body)
}

func TestEngineInvalidHandlerResponse(t *testing.T) {
	e := NewEngine(testConfig())
	e.GET("/bad", func(c *http.Context) error {
		c.SetHeader("X-Bad", "line\r\nbreak")
		return c.String(http.StatusOK, "never sent")
	})
	addr, _ := startEngine(t, e)
	c := dial(t, addr)

	c.send("GET /bad HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, body := c.read()
	assert.Equal(t, 500, resp.StatusCode)
	assert.NotContains(t, body, "never sent")
	assert.True(t, resp.Close)
	c.expectClosed()
}

func TestEngineResponseConnectionClose(t *testing.T) {
	e := NewEngine(testConfig())
	e.GET("/bye", func(c *http.Context) error {
		c.SetHeader("Connection", "close")
		return c.String(http.StatusOK, "bye")
	})
	e.GET("/bye-fail", func(c *http.Context) error {
		c.SetHeader("Connection", "close")
		return errors.New("gave up")
	})
	addr, _ := startEngine(t, e)

	tests := []struct {
		path   string
		status int
	}{
		{"/bye", 200},
		{"/bye-fail", 500},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := dial(t, addr)
			c.conn.SetDeadline(time.Now().Add(time.Second))
			c.send("GET " + tt.path + " HTTP/1.1\r\nHost: x\r\n\r\n")
			resp, _ := c.read()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.True(t, resp.Close)

			_, err := c.br.ReadByte()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
	require.Eventually(t, func() bool { return e.Stats().Connections == 0 }, time.Second, 10*time.Millisecond)
}

func TestEngineMaxRequestsPerConnection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestsPerConnection = 2
	_, addr := newTestEngine(t, cfg)
	c := dial(t, addr)

	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, _ := c.read()
	assert.False(t, resp.Close)

	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, _ = c.read()
	assert.True(t, resp.Close)
	c.expectClosed()
}

func TestEngineMaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	e, addr := newTestEngine(t, cfg)

	first := dial(t, addr)
	first.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, _ := first.read()
	require.Equal(t, 200, resp.StatusCode)

	second := dial(t, addr)
	second.expectClosed()
	assert.Equal(t, uint64(1), e.Monitor().Snapshot().Rejected)

	first.conn.Close()
	require.Eventually(t, func() bool { return e.Stats().Connections == 0 }, 2*time.Second, 10*time.Millisecond)

	third := dial(t, addr)
	third.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	resp, _ = third.read()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestEngineIdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	e, addr := newTestEngine(t, cfg)

	c := dial(t, addr)
	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	c.read()

	start := time.Now()
	c.expectClosed()
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Eventually(t, func() bool { return e.Stats().Connections == 0 }, time.Second, 10*time.Millisecond)
}

func TestEngineBlankLineAfterRequestIsIdle(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	cfg.ReadTimeout = 5 * time.Second
	_, addr := newTestEngine(t, cfg)

	c := dial(t, addr)
	c.send("POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 2\r\n\r\nhi\r\n")
	c.read()

	start := time.Now()
	c.expectClosed()
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngineReadTimeoutMidRequest(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	_, addr := newTestEngine(t, cfg)

	c := dial(t, addr)
	c.send("GET / HTTP/1.1\r\nHost:")
	c.expectClosed()
}

func TestEngineShutdown(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	e := NewEngine(testConfig())
	e.GET("/slow", func(c *http.Context) error {
		close(started)
		<-release
		return c.String(http.StatusOK, "done")
	})
	e.GET("/", func(c *http.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	addr, served := startEngine(t, e)

	idle := dial(t, addr)
	idle.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	idle.read()

	busy := dial(t, addr)
	busy.send("GET /slow HTTP/1.1\r\nHost: x\r\n\r\n")
	<-started

	shutdown := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown <- e.Shutdown(ctx)
	}()

	idle.expectClosed()
	select {
	case err := <-served:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	close(release)
	resp, body := busy.read()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "done", body)
	assert.True(t, resp.Close)

	assert.NoError(t, <-shutdown)
	assert.Equal(t, int64(0), e.Stats().Connections)

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

// hookConn runs afterRead once a read returns, standing in for whatever
// happens between the kernel handing over bytes and the worker acting on
// them.
type hookConn struct {
	net.Conn
	afterRead func()
}

func (h *hookConn) Read(p []byte) (int, error) {
	n, err := h.Conn.Read(p)
	if h.afterRead != nil {
		h.afterRead()
	}
	return n, err
}

func TestEngineIdleClaim(t *testing.T) {
	tests := []struct {
		name       string
		closeFirst bool
		wantErr    error
		wantState  int32
	}{
		{"shutdown claims first", true, ErrServerClosed, StateClosed},
		{"worker claims first", false, nil, StateReading},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testConfig())
			server, peer := net.Pipe()
			defer peer.Close()

			hc := &hookConn{Conn: server}
			e.live.Add(1)
			c := e.newConn(hc)
			e.conns.Store(c.id, c)
			defer c.close("test")
			if tt.closeFirst {
				hc.afterRead = func() { e.closeIdle() }
			}

			go io.WriteString(peer, "GET / HTTP/1.1\r\n")
			err := c.fill()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				e.closeIdle()
			}
			assert.Equal(t, tt.wantState, c.state.Load())
		})
	}
}

func TestEngineShutdownDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})

	e := NewEngine(testConfig())
	e.GET("/stuck", func(c *http.Context) error {
		close(started)
		<-release
		return nil
	})
	addr, _ := startEngine(t, e)

	c := dial(t, addr)
	c.send("GET /stuck HTTP/1.1\r\nHost: x\r\n\r\n")
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)
	c.expectClosed()
}

// flakyListener fails the first accept with a per-client error before
// delegating to the real listener.
type flakyListener struct {
	net.Listener
	failures chan error
}

func (l *flakyListener) Accept() (net.Conn, error) {
	select {
	case err := <-l.failures:
		return nil, err
	default:
	}
	return l.Listener.Accept()
}

func TestEngineSurvivesClientAcceptErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"EPROTO", os.NewSyscallError("accept", unix.EPROTO)},
		{"ECONNRESET", os.NewSyscallError("accept", unix.ECONNRESET)},
		{"ENETUNREACH", os.NewSyscallError("accept", unix.ENETUNREACH)},
		{"EMFILE", os.NewSyscallError("accept", unix.EMFILE)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(testConfig())
			e.GET("/", func(c *http.Context) error {
				return c.String(http.StatusOK, "still here")
			})

			inner, err := net.Listen("tcp", "127.0.0.1:0")
			require.NoError(t, err)
			ln := &flakyListener{Listener: inner, failures: make(chan error, 1)}
			ln.failures <- &net.OpError{Op: "accept", Net: "tcp", Err: tt.err}

			done := make(chan error, 1)
			go func() { done <- e.Serve(ln) }()

			c := dial(t, inner.Addr().String())
			c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
			resp, body := c.read()
			assert.Equal(t, 200, resp.StatusCode)
			assert.Equal(t, "still here", body)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			c.conn.Close()
			require.NoError(t, e.Shutdown(ctx))
			assert.ErrorIs(t, <-done, ErrServerClosed)
		})
	}
}

func TestEngineListenerGone(t *testing.T) {
	tests := []struct {
		err  error
		gone bool
	}{
		{net.ErrClosed, true},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.EBADF)}, true},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.EINVAL)}, true},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.ENOTSOCK)}, true},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.EPROTO)}, false},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.EPERM)}, false},
		{&net.OpError{Op: "accept", Err: os.NewSyscallError("accept", unix.ENFILE)}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.gone, isListenerGone(tt.err), tt.err.Error())
	}
}

func TestEngineServeReturnsWhenListenerCloses(t *testing.T) {
	e := NewEngine(testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Serve(ln) }()
	require.Eventually(t, func() bool { return e.Addr() != nil }, time.Second, 10*time.Millisecond)

	ln.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running on a closed listener")
	}
}

func TestEngineRoutesFreeze(t *testing.T) {
	e, addr := newTestEngine(t, testConfig())
	c := dial(t, addr)
	c.send("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	c.read()

	assert.PanicsWithValue(t, ErrRoutesFrozen, func() {
		e.GET("/late", func(c *http.Context) error { return nil })
	})
	assert.PanicsWithValue(t, ErrRoutesFrozen, func() {
		e.Use(middleware.RequestID())
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Serve(ln), ErrAlreadyServing)

	assert.NotEmpty(t, e.Routes())
}

func TestEngineRejectsInvalidRoutes(t *testing.T) {
	e := NewEngine(testConfig())
	e.GET("users", func(c *http.Context) error { return nil })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	err = e.Serve(ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid routes")
}

func TestEngineMiddlewareAndStats(t *testing.T) {
	e := NewEngine(testConfig())
	e.Use(middleware.RequestID())
	e.GET("/users/:id", func(c *http.Context) error {
		return c.String(http.StatusOK, c.Param("id"))
	})
	addr, _ := startEngine(t, e)

	c := dial(t, addr)
	for i := 0; i < 3; i++ {
		c.send("GET /users/7 HTTP/1.1\r\nHost: x\r\n\r\n")
		resp, _ := c.read()
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}
	c.send("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n")
	c.read()

	stats := e.Stats()
	assert.Equal(t, int64(1), stats.Connections)
	assert.Equal(t, 1, stats.Tracked)
	assert.Equal(t, uint64(4), stats.Monitor.Requests)
	assert.Equal(t, uint64(3), stats.Monitor.StatusClasses["2xx"])
	assert.Equal(t, uint64(1), stats.Monitor.StatusClasses["4xx"])
	require.Len(t, stats.Monitor.Routes, 1)
	assert.Equal(t, "GET /users/:id", stats.Monitor.Routes[0].Route)
	assert.Equal(t, uint64(3), stats.Monitor.Routes[0].Count)
}

func BenchmarkEngineKeepAlive(b *testing.B) {
	e := NewEngine(testConfig())
	e.GET("/", func(c *http.Context) error {
		return c.String(http.StatusOK, "Hello, World!")
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatal(err)
	}
	go e.Serve(ln)
	defer e.Shutdown(context.Background())

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)
	req := []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Write(req); err != nil {
			b.Fatal(err)
		}
		resp, err := nethttp.ReadResponse(br, nil)
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
