package http

import (
	"fmt"
	"html"
	"io"
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// Response is what a handler produces. The reason phrase is always derived
// from Status.
type Response struct {
	Status int
	Header Header

	// Body is sent with a Content-Length. Ignored when Stream is set.
	Body []byte

	// Stream produces the body incrementally. Without a Content-Length
	// header every Write becomes one chunk of a chunked body; with one, the
	// stream must produce exactly that many bytes.
	Stream func(w io.Writer) error

	// Close asks the connection to close after this response.
	Close bool
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// SetBody sets a fixed body and its content type.
func (r *Response) SetBody(contentType string, body []byte) {
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Body = body
	r.Stream = nil
}

// Validate checks that the response can be serialized: every header field
// is well formed, and a declared Content-Length agrees with a fixed body
// (ErrBodyLengthMismatch otherwise).
func (r *Response) Validate() error {
	if s := r.status(); s < 100 || s > 999 {
		return fmt.Errorf("http: invalid status code %d", s)
	}
	for _, f := range r.Header.Fields() {
		if !httpguts.ValidHeaderFieldName(f.Name) || !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("http: invalid response header %q", f.Name)
		}
	}
	if r.Stream != nil || !bodyAllowed(r.status()) {
		return nil
	}
	if cl := r.Header.Values("Content-Length"); len(cl) > 0 {
		n, err := strconv.ParseInt(cl[0], 10, 64)
		if len(cl) > 1 || err != nil || n != int64(len(r.Body)) {
			return ErrBodyLengthMismatch
		}
	}
	return nil
}

// WantsClose reports whether the connection must close after this
// response, either through Close or a "Connection: close" field.
func (r *Response) WantsClose() bool {
	return r.Close || httpguts.HeaderValuesContainsToken(r.Header.Values("Connection"), "close")
}

func (r *Response) status() int {
	if r.Status == 0 {
		return StatusOK
	}
	return r.Status
}

// ErrorResponse builds a response with a small HTML page naming the status.
func ErrorResponse(code int) *Response {
	text := html.EscapeString(StatusText(code))
	page := "<!DOCTYPE html>\n<html lang=\"en\">\n<head><meta charset=\"utf-8\"><title>" + text +
		"</title></head>\n<body>\n<h1>" + text + "</h1>\n</body>\n</html>"

	resp := NewResponse(code)
	resp.SetBody("text/html; charset=utf-8", []byte(page))
	return resp
}

// RedirectResponse builds a redirect with a short HTML body pointing at
// location.
func RedirectResponse(code int, location string) *Response {
	text := html.EscapeString(StatusText(code))
	href := html.EscapeString(location)
	page := "<!DOCTYPE html>\n<html lang=\"en\">\n<head><meta charset=\"utf-8\"><title>" + text +
		"</title></head>\n<body>\n<h1>" + text + "</h1>\n<p>The document has moved <a href=\"" + href +
		"\">here</a>.</p>\n</body>\n</html>"

	resp := NewResponse(code)
	resp.Header.Set("Location", location)
	resp.SetBody("text/html; charset=utf-8", []byte(page))
	return resp
}
