package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/dataloader/config"
	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/logging"
)

// app is the state shared by the subcommands once the root has loaded the
// configuration.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	configPath string
	overrides  config.Overrides
	shuffle    bool
	noShuffle  bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	a := &app{log: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:           "dataloader",
		Short:         "Labeled image datasets, batching and a small trainer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "YAML config file (defaults are used when empty)")
	f.BoolVar(&a.debug, "debug", false, "enable debug logging")
	f.StringVar(&a.overrides.LogFormat, "log-format", "", "log format: auto, console or json")
	f.StringVar(&a.overrides.Manifest, "manifest", "", "CSV manifest of an images dataset")
	f.StringVar(&a.overrides.ImageDir, "image-dir", "", "image directory (defaults to the manifest's directory)")
	f.StringVar(&a.overrides.FashionRoot, "fashion-root", "", "directory holding the FashionMNIST IDX files")
	f.IntVar(&a.overrides.BatchSize, "batch-size", 0, "batch size")
	f.IntVar(&a.overrides.NumWorkers, "workers", 0, "prefetch workers (0 reads synchronously)")
	f.StringVar(&a.overrides.OutputDir, "output", "", "output directory for runs and reports")
	f.Int64Var(&a.overrides.Seed, "seed", 0, "seed for shuffling and weight init")
	f.BoolVar(&a.shuffle, "shuffle", false, "shuffle every epoch")
	f.BoolVar(&a.noShuffle, "no-shuffle", false, "visit samples in manifest order")
	cmd.MarkFlagsMutuallyExclusive("shuffle", "no-shuffle")

	cmd.AddCommand(
		newInspectCmd(a),
		newIterateCmd(a),
		newExportFashionCmd(a),
		newTrainCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if a.configPath != "" {
		var err error
		if cfg, err = config.ReadFile(a.configPath); err != nil {
			return err
		}
	}

	switch {
	case a.shuffle:
		on := true
		a.overrides.Shuffle = &on
	case a.noShuffle:
		off := false
		a.overrides.Shuffle = &off
	}
	if a.debug {
		a.overrides.LogLevel = "debug"
	}
	cfg.ApplyOverrides(a.overrides)
	a.cfg = cfg

	a.log = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})
	cmd.SetContext(a.log.WithContext(cmd.Context()))
	a.log.Debug().Str("command", cmd.Name()).Str("config", a.configPath).Msg("command started")
	return nil
}

// openDataset validates the config and opens the configured dataset.
func (a *app) openDataset() (datasets.Dataset, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return a.cfg.OpenDataset(logging.Component(a.log, "datasets"))
}
