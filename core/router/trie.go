package router

import (
	"fmt"
	"strings"

	"github.com/searchktools/lean-server/core/http"
)

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

// node is one path segment of the route trie.
type node struct {
	segment   string // literal segment for static nodes
	nType     nodeType
	paramName string // parameter name for :param or *param nodes

	statics  []*node
	param    *node
	catchAll *node

	handlers map[string]http.HandlerFunc // method -> handler
	pattern  string
}

func (n *node) staticChild(seg string) *node {
	for _, c := range n.statics {
		if c.segment == seg {
			return c
		}
	}
	return nil
}

// insert adds the route below n and returns its terminal node. segs is
// the pattern split on '/'.
func (n *node) insert(method, pattern string, segs []string, h http.HandlerFunc) (*node, error) {
	for i, seg := range segs {
		switch {
		case strings.HasPrefix(seg, ":"):
			name := seg[1:]
			if n.param == nil {
				n.param = &node{nType: param, paramName: name}
			} else if n.param.paramName != name {
				return nil, fmt.Errorf("%s %s: parameter :%s conflicts with :%s at the same position", method, pattern, name, n.param.paramName)
			}
			n = n.param

		case strings.HasPrefix(seg, "*"):
			name := seg[1:]
			if i != len(segs)-1 {
				return nil, fmt.Errorf("%s %s: catch-all routes are only allowed at the end of the path", method, pattern)
			}
			if n.catchAll == nil {
				n.catchAll = &node{nType: catchAll, paramName: name}
			} else if n.catchAll.paramName != name {
				return nil, fmt.Errorf("%s %s: catch-all *%s conflicts with *%s", method, pattern, name, n.catchAll.paramName)
			}
			n = n.catchAll

		default:
			child := n.staticChild(seg)
			if child == nil {
				child = &node{segment: seg}
				n.statics = append(n.statics, child)
			}
			n = child
		}
	}

	if n.handlers == nil {
		n.handlers = make(map[string]http.HandlerFunc)
	}
	if _, dup := n.handlers[method]; dup {
		return nil, fmt.Errorf("%s %s: duplicate route (already registered as %s)", method, pattern, n.pattern)
	}
	n.handlers[method] = h
	n.pattern = pattern
	return n, nil
}

// find walks the trie in priority order (literal, parameter, catch-all) and
// calls accept for every terminal node that matches the whole path. It
// returns the first node accept takes; params hold its bindings.
//
// rest is the path below n without its leading '/'.
func (n *node) find(rest string, params *http.Params, accept func(*node) bool) *node {
	seg, tail, more := strings.Cut(rest, "/")

	if c := n.staticChild(seg); c != nil {
		if found := c.descend(tail, more, params, accept); found != nil {
			return found
		}
	}

	if c := n.param; c != nil && seg != "" {
		mark := len(*params)
		*params = append(*params, http.Param{Key: c.paramName, Value: seg})
		if found := c.descend(tail, more, params, accept); found != nil {
			return found
		}
		*params = (*params)[:mark]
	}

	if c := n.catchAll; c != nil && c.handlers != nil {
		mark := len(*params)
		*params = append(*params, http.Param{Key: c.paramName, Value: rest})
		if accept(c) {
			return c
		}
		*params = (*params)[:mark]
	}
	return nil
}

func (n *node) descend(tail string, more bool, params *http.Params, accept func(*node) bool) *node {
	if more {
		return n.find(tail, params, accept)
	}
	if n.handlers != nil && accept(n) {
		return n
	}
	return nil
}

// splitPattern validates a pattern and splits it into segments.
func splitPattern(pattern string) ([]string, error) {
	if pattern == "" || pattern[0] != '/' {
		return nil, fmt.Errorf("pattern %q must begin with '/'", pattern)
	}
	segs := strings.Split(pattern[1:], "/")
	seen := make(map[string]bool)
	for _, seg := range segs {
		if seg == "" || (seg[0] != ':' && seg[0] != '*') {
			continue
		}
		name := seg[1:]
		if name == "" {
			return nil, fmt.Errorf("pattern %q: wildcards must be named", pattern)
		}
		if strings.ContainsAny(name, ":*") {
			return nil, fmt.Errorf("pattern %q: only one wildcard per path segment is allowed", pattern)
		}
		if seen[name] {
			return nil, fmt.Errorf("pattern %q: parameter %q bound twice", pattern, name)
		}
		seen[name] = true
	}
	return segs, nil
}
