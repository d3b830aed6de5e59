// Package router maps (method, path) to handlers through an immutable
// segment trie. Routes are collected by a Builder and validated once; the
// resulting Table is shared by every connection without locking.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/lean-server/core/http"
)

// Outcome is the result class of a lookup.
type Outcome uint8

const (
	NoRoute Outcome = iota
	Matched
	MethodNotAllowed
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case MethodNotAllowed:
		return "method not allowed"
	}
	return "no route"
}

// Result is returned by Table.Lookup.
type Result struct {
	Outcome Outcome
	Handler http.HandlerFunc
	Params  http.Params
	Pattern string

	// Allow lists the methods registered for the path, sorted. Set only
	// for MethodNotAllowed.
	Allow []string
}

// AllowHeader formats Allow for the Allow response header.
func (r Result) AllowHeader() string {
	return strings.Join(r.Allow, ", ")
}

// RouteInfo describes one registered route.
type RouteInfo struct {
	Method  string
	Pattern string
}

type route struct {
	method  string
	pattern string
	handler http.HandlerFunc
}

// Builder collects routes before the server starts.
type Builder struct {
	routes []route
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Add registers a route. Patterns use literal segments, ":name" parameter
// segments and an optional trailing "*name" catch-all.
func (b *Builder) Add(method, pattern string, h http.HandlerFunc) {
	b.routes = append(b.routes, route{method: method, pattern: pattern, handler: h})
}

// GET registers a GET route
func (b *Builder) GET(pattern string, h http.HandlerFunc) { b.Add(http.MethodGet, pattern, h) }

// HEAD registers a HEAD route
func (b *Builder) HEAD(pattern string, h http.HandlerFunc) { b.Add(http.MethodHead, pattern, h) }

// POST registers a POST route
func (b *Builder) POST(pattern string, h http.HandlerFunc) { b.Add(http.MethodPost, pattern, h) }

// PUT registers a PUT route
func (b *Builder) PUT(pattern string, h http.HandlerFunc) { b.Add(http.MethodPut, pattern, h) }

// PATCH registers a PATCH route
func (b *Builder) PATCH(pattern string, h http.HandlerFunc) { b.Add(http.MethodPatch, pattern, h) }

// DELETE registers a DELETE route
func (b *Builder) DELETE(pattern string, h http.HandlerFunc) { b.Add(http.MethodDelete, pattern, h) }

// OPTIONS registers an OPTIONS route
func (b *Builder) OPTIONS(pattern string, h http.HandlerFunc) { b.Add(http.MethodOptions, pattern, h) }

// Len returns the number of routes added so far.
func (b *Builder) Len() int {
	return len(b.routes)
}

// Wrap replaces every handler with wrap(handler). Used to apply a
// middleware chain before Build. Nil handlers stay nil so Build still
// rejects them.
func (b *Builder) Wrap(wrap func(http.HandlerFunc) http.HandlerFunc) {
	for i := range b.routes {
		if b.routes[i].handler != nil {
			b.routes[i].handler = wrap(b.routes[i].handler)
		}
	}
}

// Build validates all routes and returns the immutable table. Every
// invalid or ambiguous route is reported.
func (b *Builder) Build() (*Table, error) {
	t := &Table{root: &node{}, static: make(map[string]*node)}
	var errs []error
	for _, r := range b.routes {
		if err := t.add(r); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

// Table is the frozen route table.
type Table struct {
	root *node

	// static indexes routes without wildcards by their full path. A literal
	// match always has the highest priority, so it is checked first.
	static map[string]*node

	routes    []RouteInfo
	maxParams int
}

func (t *Table) add(r route) error {
	if r.method == "" || strings.IndexFunc(r.method, func(c rune) bool { return !httpguts.IsTokenRune(c) }) >= 0 {
		return fmt.Errorf("route %q: invalid method %q", r.pattern, r.method)
	}
	if r.handler == nil {
		return fmt.Errorf("%s %s: nil handler", r.method, r.pattern)
	}
	segs, err := splitPattern(r.pattern)
	if err != nil {
		return err
	}
	n, err := t.root.insert(r.method, r.pattern, segs, r.handler)
	if err != nil {
		return err
	}

	params := 0
	for _, s := range segs {
		if s != "" && (s[0] == ':' || s[0] == '*') {
			params++
		}
	}
	if params == 0 {
		t.static[r.pattern] = n
	} else if params > t.maxParams {
		t.maxParams = params
	}
	t.routes = append(t.routes, RouteInfo{Method: r.method, Pattern: r.pattern})
	return nil
}

// Lookup resolves method and path. path is the decoded request path.
func (t *Table) Lookup(method, path string) Result {
	if path == "" || path[0] != '/' {
		return Result{Outcome: NoRoute}
	}
	if n, ok := t.static[path]; ok {
		if h := n.handlers[method]; h != nil {
			return Result{Outcome: Matched, Handler: h, Pattern: n.pattern}
		}
	}
	rest := path[1:]

	var params http.Params
	if t.maxParams > 0 {
		params = make(http.Params, 0, t.maxParams)
	}
	n := t.root.find(rest, &params, func(n *node) bool {
		return n.handlers[method] != nil
	})
	if n != nil {
		return Result{Outcome: Matched, Handler: n.handlers[method], Params: params, Pattern: n.pattern}
	}

	// No handler for this method; collect what the path does allow.
	allowed := make(map[string]struct{})
	var scratch http.Params
	t.root.find(rest, &scratch, func(n *node) bool {
		for m := range n.handlers {
			allowed[m] = struct{}{}
		}
		return false
	})
	if len(allowed) == 0 {
		return Result{Outcome: NoRoute}
	}
	allow := make([]string, 0, len(allowed))
	for m := range allowed {
		allow = append(allow, m)
	}
	sort.Strings(allow)
	return Result{Outcome: MethodNotAllowed, Allow: allow}
}

// Routes lists the registered routes sorted by pattern, then method.
func (t *Table) Routes() []RouteInfo {
	out := make([]RouteInfo, len(t.routes))
	copy(out, t.routes)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pattern != out[j].Pattern {
			return out[i].Pattern < out[j].Pattern
		}
		return out[i].Method < out[j].Method
	})
	return out
}
