package main

// Example command that demonstrates loading an image dataset from a CSV
// manifest, iterating it in shuffled batches with background prefetching,
// and converting a batch into gomlx tensors.
//
// The dataset is lazy: the manifest is read up front, images are decoded
// only when a batch needs them.
//
// Usage:
//   go run ./datasets/example -manifest data/labels.csv -images data/images
//
// When -manifest is empty the example looks for a CSV in the image
// directory.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/loader"
	"github.com/Noofbiz/dataloader/logging"
)

func main() {
	manifest := flag.String("manifest", "", "CSV manifest (file,label)")
	imageDir := flag.String("images", "data/images", "image directory")
	batchSize := flag.Int("batch", 8, "batch size")
	workers := flag.Int("workers", 2, "prefetch workers")
	flag.Parse()

	log := logging.New(logging.Config{Level: "debug", Format: logging.FormatConsole})

	path := *manifest
	if path == "" {
		var err error
		if path, err = datasets.FindManifest(*imageDir); err != nil {
			log.Fatal().Err(err).Msg("no manifest found")
		}
	}

	ds, err := datasets.NewImageDataset(path, *imageDir,
		datasets.WithLogger(logging.Component(log, "datasets")),
		datasets.WithTransform(datasets.ToUnitRange()),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load image dataset")
	}
	fmt.Printf("Dataset %s: %d examples\n", ds.Name(), ds.Len())
	if classes := ds.Classes(); classes != nil {
		fmt.Printf("  Classes: %v\n", classes)
	}

	loaderLog := logging.Component(log, "loader")
	l, err := loader.New(ds, loader.Options{
		BatchSize:  *batchSize,
		Shuffle:    true,
		Rand:       rand.New(rand.NewSource(1)),
		NumWorkers: *workers,
		Logger:     &loaderLog,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create loader")
	}
	defer l.Close()
	fmt.Printf("Batches per epoch: %d\n", l.NumBatches())

	ctx := context.Background()
	first, err := l.Next(ctx)
	if err == io.EOF {
		fmt.Println("Dataset is empty")
		os.Exit(0)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read the first batch")
	}

	inT, laT := first.Tensors()
	fmt.Printf("First batch: indices %v\n", first.Indices)
	fmt.Printf("  Features: %v -> %s\n", first.Features.Shape, inT.Shape())
	fmt.Printf("  Labels:   %v -> %s\n", first.Labels.Shape, laT.Shape())
	fmt.Printf("  Labels:   %v\n", first.Labels.Data)

	// Drain the rest of the epoch.
	seen := first.Size()
	for {
		b, err := l.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal().Err(err).Msg("batch failed")
		}
		seen += b.Size()
	}
	fmt.Printf("Epoch %d done: %d examples\n", l.Epoch(), seen)
}
