/*
Package leanserver is a small HTTP/1.1 origin server with a static file
handler on top.

The server runs one goroutine per connection. Requests are decoded by an
incremental parser, dispatched through a route table that is frozen when
serving starts, and answered by a serializer that owns all message framing.
Keep-alive, pipelining, request bodies (Content-Length and chunked) and
graceful shutdown are supported. TLS, HTTP/2 and request upgrades are not.

Quick Start

	package main

	import (
	    "log"

	    "github.com/searchktools/lean-server/app"
	    "github.com/searchktools/lean-server/config"
	    "github.com/searchktools/lean-server/core/http"
	)

	func main() {
	    cfg := config.Default()
	    cfg.DocRoot = "./public"

	    application := app.New(cfg)
	    engine := application.Engine()

	    engine.GET("/hello/:name", func(c *http.Context) error {
	        return c.String(http.StatusOK, "Hello, "+c.Param("name"))
	    })

	    if err := application.Run(); err != nil {
	        log.Fatal(err)
	    }
	}

Modules

  - app: logging, runtime tuning, built-in routes and signal handling
  - config: defaults, JSON file, LEAN_* environment and flags
  - core: listener, admission control, connection workers, shutdown
  - core/http: request parser, response writer, handler context
  - core/router: segment trie with literal, parameter and catch-all routes
  - core/middleware: middleware pipeline and built-ins
  - core/pools: read buffer and writer pools, GC tuning
  - core/observability: request and connection metrics
  - handlers/static: document root and virtual host file serving
  - handlers/status: server statistics as JSON or protobuf
  - cmd/leanhttpd: the server binary
*/
package leanserver
