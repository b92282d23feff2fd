// Command dataloader inspects, iterates, exports and trains on labeled
// image datasets.
//
// Examples:
//
//	dataloader inspect --manifest data/labels.csv --image-dir data/images
//	dataloader iterate --config run.yaml --workers 4 --epochs 2
//	dataloader export-fashion --fashion-root ~/data --split test --out data/fashion-test
//	dataloader train --config run.yaml --epochs 10
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
