package http

import (
	"encoding/json"
	"io"
)

// HandlerFunc handles one request. A returned error is logged and answered
// with 500; any response the handler set is discarded except its Close flag.
type HandlerFunc func(c *Context) error

// Param is one bound path parameter.
type Param struct {
	Key   string
	Value string
}

// Params are the parameters bound by the router, in pattern order.
type Params []Param

// Get returns the value bound to key.
func (ps Params) Get(key string) string {
	for _, p := range ps {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Context carries one request through the handler chain and collects the
// response. It is owned by the connection goroutine and must not be
// retained after the handler returns.
type Context struct {
	Request *Request

	params  Params
	route   string
	resp    *Response
	aborted bool
}

// NewContext wraps req with the parameters bound for route.
func NewContext(req *Request, route string, params Params) *Context {
	return &Context{Request: req, route: route, params: params}
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.Request.Method
}

// Path returns the decoded request path.
func (c *Context) Path() string {
	return c.Request.Path
}

// Route returns the pattern of the matched route.
func (c *Context) Route() string {
	return c.route
}

// Param gets a path parameter.
func (c *Context) Param(key string) string {
	return c.params.Get(key)
}

// Params returns all bound path parameters.
func (c *Context) Params() Params {
	return c.params
}

// Query gets a query parameter.
func (c *Context) Query(key string) string {
	return c.Request.Query(key)
}

// Header gets a request header.
func (c *Context) Header(key string) string {
	return c.Request.Header.Get(key)
}

// Body returns the request body.
func (c *Context) Body() []byte {
	return c.Request.Body
}

// Bind decodes a JSON request body into v.
func (c *Context) Bind(v any) error {
	return json.Unmarshal(c.Request.Body, v)
}

// Response returns the response built so far, or nil.
func (c *Context) Response() *Response {
	return c.resp
}

// Written reports whether a response was set.
func (c *Context) Written() bool {
	return c.resp != nil
}

func (c *Context) response(code int) *Response {
	if c.resp == nil {
		c.resp = NewResponse(code)
	} else {
		c.resp.Status = code
	}
	return c.resp
}

// SetHeader sets a response header.
func (c *Context) SetHeader(key, value string) {
	if c.resp == nil {
		c.resp = NewResponse(StatusOK)
	}
	c.resp.Header.Set(key, value)
}

// AddHeader adds a response header value.
func (c *Context) AddHeader(key, value string) {
	if c.resp == nil {
		c.resp = NewResponse(StatusOK)
	}
	c.resp.Header.Add(key, value)
}

// Status sets the response status without a body.
func (c *Context) Status(code int) {
	c.response(code)
}

// String sends a text response
func (c *Context) String(code int, s string) error {
	c.response(code).SetBody("text/plain; charset=utf-8", []byte(s))
	return nil
}

// HTML sends an HTML response
func (c *Context) HTML(code int, s string) error {
	c.response(code).SetBody("text/html; charset=utf-8", []byte(s))
	return nil
}

// JSON sends a JSON response
func (c *Context) JSON(code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.response(code).SetBody("application/json", data)
	return nil
}

// Bytes sends a raw bytes response
func (c *Context) Bytes(code int, data []byte) error {
	return c.Data(code, "application/octet-stream", data)
}

// Data sends data with an explicit content type.
func (c *Context) Data(code int, contentType string, data []byte) error {
	c.response(code).SetBody(contentType, data)
	return nil
}

// Stream sends a body produced by fn. It is chunk-encoded unless a
// Content-Length header was set beforehand.
func (c *Context) Stream(code int, contentType string, fn func(w io.Writer) error) error {
	resp := c.response(code)
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	resp.Body = nil
	resp.Stream = fn
	return nil
}

// Error sends the HTML error page for code, keeping headers already set.
func (c *Context) Error(code int) error {
	page := ErrorResponse(code)
	c.response(code).SetBody(page.Header.Get("Content-Type"), page.Body)
	return nil
}

// Redirect sends a redirect to location.
func (c *Context) Redirect(code int, location string) error {
	page := RedirectResponse(code, location)
	resp := c.response(code)
	resp.Header.Set("Location", location)
	resp.SetBody(page.Header.Get("Content-Type"), page.Body)
	return nil
}

// Close asks for the connection to be closed after the response.
func (c *Context) Close() {
	c.response(c.statusOr(StatusOK)).Close = true
}

func (c *Context) statusOr(code int) int {
	if c.resp != nil {
		return c.resp.status()
	}
	return code
}

// FinalStatus returns the status the server sends for a handler that
// returned err.
func (c *Context) FinalStatus(err error) int {
	if err != nil {
		return StatusInternalServerError
	}
	return c.statusOr(StatusOK)
}

// Abort stops the middleware pipeline; the current response is sent.
func (c *Context) Abort() {
	c.aborted = true
}

// IsAborted reports whether Abort was called.
func (c *Context) IsAborted() bool {
	return c.aborted
}
