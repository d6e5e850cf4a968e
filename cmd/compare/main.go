// Command compare reconciles one or more units from disk without Kafka and
// prints the resulting reports.
//
// Usage:
//
//	go run ./cmd/compare -c reference.yaml data/mock/units.json
//	go run ./cmd/compare --boundary park.geojson -o json units/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("compare"),
		kong.Description("Reconcile climate projection units from two sources and print a comparison report."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cli.Run(ctx, os.Stdout)
	kctx.FatalIfErrorf(err)
}
