// Command leanhttpd serves static files over HTTP/1.1.
//
//	leanhttpd [flags] [port] [directory]
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/searchktools/lean-server/app"
	"github.com/searchktools/lean-server/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "leanhttpd:", err)
		os.Exit(1)
	}

	a := app.New(cfg)
	if err := a.Run(); err != nil {
		log := a.Logger()
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
