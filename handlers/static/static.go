// Package static serves files from a document root, optionally split into
// one directory per virtual host.
package static

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/searchktools/lean-server/core/http"
)

const (
	// Files up to inlineLimit bytes are read whole and may be cached;
	// larger ones are streamed with a Content-Length.
	inlineLimit = 1 << 20

	defaultCacheFiles = 256
)

type handler struct {
	root   string
	vhosts bool
	log    zerolog.Logger
	cache  *fileCache
}

// Option configures the file handler.
type Option func(*handler)

// WithVirtualHosts serves root/<host> instead of root, where <host> is the
// Host header without scheme, path and port.
func WithVirtualHosts(enabled bool) Option {
	return func(h *handler) { h.vhosts = enabled }
}

// WithLogger sets the logger for refused paths and read failures.
func WithLogger(log zerolog.Logger) Option {
	return func(h *handler) { h.log = log }
}

// WithCache bounds the number of small files kept in memory. 0 disables
// caching.
func WithCache(maxFiles int) Option {
	return func(h *handler) { h.cache = newFileCache(maxFiles) }
}

// New returns a handler serving files below root. Mount it on a catch-all
// route such as "/*filepath"; it reads the full request path.
func New(root string, opts ...Option) http.HandlerFunc {
	h := &handler{
		root:  root,
		log:   zerolog.Nop(),
		cache: newFileCache(defaultCacheFiles),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h.serve
}

func (h *handler) serve(c *http.Context) error {
	base := h.root
	if h.vhosts {
		host := hostName(c.Header("Host"))
		switch {
		case host == "":
			return c.Error(http.StatusNotFound)
		case !validSegment(host):
			h.log.Warn().Str("host", c.Header("Host")).Msg("illegal host")
			return c.Error(http.StatusForbidden)
		}
		base = filepath.Join(base, host)
	}

	rel, ok := resolve(c.Path())
	if !ok {
		h.log.Warn().Str("path", c.Path()).Msg("illegal path")
		return c.Error(http.StatusForbidden)
	}
	name := filepath.Join(base, rel)

	fi, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.Error(http.StatusNotFound)
		}
		return err
	}

	if fi.IsDir() {
		if strings.HasSuffix(c.Path(), "/") {
			return c.Redirect(http.StatusMovedPermanently, indexLocation(c.Header("Host"), c.Path()))
		}
		return c.Error(http.StatusNotFound)
	}
	if filepath.Ext(name) == "" {
		return c.Error(http.StatusNotFound)
	}

	ctype := ContentType(name)
	if fi.Size() > inlineLimit {
		return h.stream(c, name, ctype, fi.Size())
	}

	if data, ok := h.cache.get(name, fi); ok {
		return c.Data(http.StatusOK, ctype, data)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c.Error(http.StatusNotFound)
		}
		return err
	}
	if int64(len(data)) == fi.Size() {
		h.cache.put(name, fi, data)
	}
	return c.Data(http.StatusOK, ctype, data)
}

// stream sends a large file without holding it in memory.
func (h *handler) stream(c *http.Context, name, ctype string, size int64) error {
	c.SetHeader("Content-Length", strconv.FormatInt(size, 10))
	return c.Stream(http.StatusOK, ctype, func(w io.Writer) error {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.CopyN(w, f, size)
		if err != nil {
			h.log.Error().Err(err).Str("file", name).Msg("file stream failed")
		}
		return err
	})
}

// resolve cleans an absolute request path segment by segment. It fails
// when ".." would climb above the root or a segment is not a plain name.
func resolve(path string) (string, bool) {
	parts := make([]string, 0, 8)
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", false
			}
			parts = parts[:len(parts)-1]
		default:
			if !validSegment(seg) {
				return "", false
			}
			parts = append(parts, seg)
		}
	}
	return filepath.Join(parts...), true
}

func validSegment(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// hostName reduces a Host header to a bare lower-case host name.
func hostName(host string) string {
	host = strings.TrimPrefix(host, "http://")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// indexLocation is the redirect target for a directory: its index.html,
// absolute when the client named a host.
func indexLocation(host, path string) string {
	path = (&url.URL{Path: path}).EscapedPath()
	if host == "" {
		return path + "index.html"
	}
	return "http://" + host + path + "index.html"
}
