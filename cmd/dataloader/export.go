package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/datasets/fashion"
	"github.com/Noofbiz/dataloader/logging"
)

func newExportFashionCmd(a *app) *cobra.Command {
	var (
		split        string
		outDir       string
		manifestName string
	)
	cmd := &cobra.Command{
		Use:   "export-fashion",
		Short: "Write a FashionMNIST split as PNG files plus a CSV manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root := a.overrides.FashionRoot
			if root == "" {
				root = a.cfg.Dataset.Root
			}
			if root == "" {
				return errors.New("--fashion-root is required")
			}
			if outDir == "" {
				return errors.New("--out is required")
			}
			var train bool
			switch split {
			case "train":
				train = true
			case "test":
			default:
				return fmt.Errorf("--split must be train or test (got %q)", split)
			}

			log := logging.Component(a.log, "fashion")
			ds, err := fashion.New(root, train, datasets.WithLogger(log))
			if err != nil {
				return err
			}
			manifest, err := fashion.Export(ds, outDir, manifestName)
			if err != nil {
				return err
			}
			log.Info().Str("manifest", manifest).Int("samples", ds.Len()).Msg("export done")
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d images and %s\n", ds.Len(), manifest)
			return nil
		},
	}
	cmd.Flags().StringVar(&split, "split", "train", "split to export: train or test")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory")
	cmd.Flags().StringVar(&manifestName, "manifest-name", "labels.csv", "file name of the written manifest")
	return cmd
}
