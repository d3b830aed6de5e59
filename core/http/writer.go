package http

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// WriteOptions carries connection-level decisions into the serializer.
type WriteOptions struct {
	// KeepAlive is false when the connection closes after this response;
	// the writer then forces "Connection: close".
	KeepAlive bool

	// ServerName is sent as the Server header unless the response has one.
	ServerName string

	// Now stamps the Date header. Zero means time.Now.
	Now time.Time
}

// headers the writer computes itself
func framingField(name string) bool {
	return strings.EqualFold(name, "Content-Length") ||
		strings.EqualFold(name, "Transfer-Encoding") ||
		strings.EqualFold(name, "Connection")
}

// WriteResponse serializes resp onto w: status line, headers, blank line
// and body. req may be nil for responses synthesized before a request was
// fully parsed. w is not flushed.
//
// Validation errors are reported before anything is written. Errors after
// that point, including a streamed body that disagrees with its declared
// length, leave a partial message in w and the connection must be aborted.
func WriteResponse(w *bufio.Writer, req *Request, resp *Response, opts WriteOptions) error {
	if err := resp.Validate(); err != nil {
		return err
	}

	status := resp.status()
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	b := w.AvailableBuffer()
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(status)...)
	b = append(b, "\r\n"...)
	if !resp.Header.Has("Date") {
		b = append(b, "Date: "...)
		b = appendDate(b, now)
		b = append(b, "\r\n"...)
	}
	if opts.ServerName != "" && !resp.Header.Has("Server") {
		b = append(b, "Server: "...)
		b = append(b, opts.ServerName...)
		b = append(b, "\r\n"...)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}

	for _, f := range resp.Header.Fields() {
		if framingField(f.Name) {
			continue
		}
		if err := writeField(w, f.Name, f.Value); err != nil {
			return err
		}
	}

	connection := "keep-alive"
	if !opts.KeepAlive {
		connection = "close"
	} else if v := resp.Header.Get("Connection"); v != "" {
		connection = v
	}
	if err := writeField(w, "Connection", connection); err != nil {
		return err
	}

	head := req != nil && req.Method == MethodHead
	if !bodyAllowed(status) {
		_, err := w.WriteString("\r\n")
		return err
	}

	if resp.Stream == nil {
		if err := writeField(w, "Content-Length", strconv.Itoa(len(resp.Body))); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
		if head {
			return nil
		}
		_, err := w.Write(resp.Body)
		return err
	}

	if declared := resp.Header.Get("Content-Length"); declared != "" {
		n, err := strconv.ParseInt(declared, 10, 64)
		if err != nil || n < 0 {
			return ErrBodyLengthMismatch
		}
		if err := writeField(w, "Content-Length", declared); err != nil {
			return err
		}
		if _, err := w.WriteString("\r\n"); err != nil {
			return err
		}
		if head {
			return nil
		}
		cw := &countingWriter{w: w, limit: n}
		if err := resp.Stream(cw); err != nil {
			return err
		}
		if cw.n != n {
			return ErrBodyLengthMismatch
		}
		return nil
	}

	if err := writeField(w, "Transfer-Encoding", "chunked"); err != nil {
		return err
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if head {
		return nil
	}
	chunked := NewChunkedWriter(w)
	if err := resp.Stream(chunked); err != nil {
		return err
	}
	return chunked.Close()
}

func writeField(w *bufio.Writer, name, value string) error {
	b := w.AvailableBuffer()
	b = append(b, name...)
	b = append(b, ": "...)
	b = append(b, value...)
	b = append(b, "\r\n"...)
	_, err := w.Write(b)
	return err
}

// WriteTo is a convenience for writing a single response to an io.Writer.
func WriteTo(dst io.Writer, req *Request, resp *Response, opts WriteOptions) error {
	w := bufio.NewWriter(dst)
	if err := WriteResponse(w, req, resp, opts); err != nil {
		return err
	}
	return w.Flush()
}
