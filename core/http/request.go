package http

import (
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Known request methods.
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodPatch   = "PATCH"
	MethodOptions = "OPTIONS"
)

// KnownMethod reports whether m is one of the methods the server handles
// natively.
func KnownMethod(m string) bool {
	switch m {
	case MethodGet, MethodHead, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodOptions:
		return true
	}
	return false
}

// Version is the HTTP version of a request.
type Version uint8

const (
	HTTP10 Version = iota + 1
	HTTP11
)

func (v Version) String() string {
	switch v {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	}
	return "HTTP/?"
}

// Request is one parsed HTTP/1.x request. A new value is produced for every
// message on a connection.
type Request struct {
	Method    string
	RawTarget string // request-target exactly as received
	Path      string // percent-decoded path without the query
	RawQuery  string
	Version   Version

	Header  Header
	Trailer Header

	// Body is nil when the request carried no body.
	Body []byte

	query url.Values
}

// Host returns the Host header value.
func (r *Request) Host() string {
	return r.Header.Get("Host")
}

// Query returns the first value of the query parameter key.
func (r *Request) Query(key string) string {
	if r.RawQuery == "" {
		return ""
	}
	if r.query == nil {
		r.query, _ = url.ParseQuery(r.RawQuery)
	}
	return r.query.Get(key)
}

// WantsClose reports whether the client asked for the connection to be
// closed after this request: an explicit "Connection: close", or HTTP/1.0
// without "Connection: keep-alive".
func (r *Request) WantsClose() bool {
	conn := r.Header.Values("Connection")
	if httpguts.HeaderValuesContainsToken(conn, "close") {
		return true
	}
	if r.Version == HTTP10 {
		return !httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return false
}

// splitTarget separates and decodes the path of a request-target. Absolute
// targets ("http://host/path") are reduced to their path.
func splitTarget(target string) (path, rawQuery string, ok bool) {
	if target == "*" {
		return "*", "", true
	}
	if i := strings.Index(target, "://"); i > 0 && target[0] != '/' {
		rest := target[i+3:]
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			target = "/"
		} else {
			target = rest[slash:]
		}
	}
	if target == "" || target[0] != '/' {
		return "", "", false
	}

	rawPath := target
	if q := strings.IndexByte(target, '?'); q >= 0 {
		rawPath, rawQuery = target[:q], target[q+1:]
	}
	if i := strings.IndexByte(rawPath, '#'); i >= 0 {
		rawPath = rawPath[:i]
	}

	if strings.IndexByte(rawPath, '%') < 0 {
		return rawPath, rawQuery, true
	}
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", "", false
	}
	return decoded, rawQuery, true
}
