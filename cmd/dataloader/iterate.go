package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/dataloader/loader"
	"github.com/Noofbiz/dataloader/logging"
)

func newIterateCmd(a *app) *cobra.Command {
	var (
		epochs int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "iterate",
		Short: "Read the dataset in batches and report throughput",
		Long: "Iterate runs the batch iterator over the dataset exactly as training would,\n" +
			"without a model, and reports batches, samples and samples per second per epoch.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := a.openDataset()
			if err != nil {
				return err
			}
			log := logging.Component(a.log, "loader")
			l, err := loader.New(ds, a.cfg.LoaderOptions(&log))
			if err != nil {
				return err
			}
			defer l.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dataset %s: %d samples, %d batches per epoch\n", ds.Name(), l.Len(), l.NumBatches())

			for ep := 1; ep <= epochs; ep++ {
				start := time.Now()
				var batches, samples int
				for b, err := range l.Batches(cmd.Context()) {
					if err != nil {
						return fmt.Errorf("epoch %d: %w", ep, err)
					}
					batches++
					samples += b.Size()
					log.Debug().Int("seq", b.Seq).Int("size", b.Size()).Ints("feature_shape", b.Features.Shape).Msg("batch")
					if limit > 0 && batches >= limit {
						break
					}
				}
				elapsed := time.Since(start)
				fmt.Fprintf(out, "epoch %d: %d batches, %d samples in %s (%.0f samples/s)\n",
					ep, batches, samples, elapsed.Round(time.Millisecond), float64(samples)/max(elapsed.Seconds(), 1e-9))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&epochs, "epochs", 1, "number of epochs to read")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop each epoch after this many batches (0 reads all)")
	return cmd
}
