package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fluxr/fluxr/internal/cli"
)

func main() {
	addr := flag.String("addr", os.Getenv("FLUXRD_ADDR"), "Listen address (default from config, 127.0.0.1:7420)")
	token := flag.String("token", os.Getenv("FLUXRD_TOKEN"), "Bearer token for API requests")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	actor := flag.String("as", "", "Actor for requests without X-Fluxr-Actor")
	flag.Parse()

	opts := cli.DaemonOptions{
		Addr:   *addr,
		Token:  *token,
		DBPath: *dbPath,
		Actor:  *actor,
	}

	if err := cli.ServeDaemon(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
