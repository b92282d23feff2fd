package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/loader"
	"github.com/Noofbiz/dataloader/logging"
	"github.com/Noofbiz/dataloader/report"
	"github.com/Noofbiz/dataloader/simple"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		epochs       int
		evalManifest string
		evalImageDir string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the MLP classifier on the dataset",
		Long: "Train fits a small MLP to the configured dataset through the batch iterator.\n" +
			"Each run gets its own directory under output_dir named by its run id, holding\n" +
			"the resolved config, the model checkpoint and the training curve.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if epochs > 0 {
				a.cfg.Training.Epochs = epochs
			}
			ds, err := a.openDataset()
			if err != nil {
				return err
			}
			if ds.Len() == 0 {
				return errors.New("dataset is empty")
			}

			runID := ulid.Make().String()
			log := a.log.With().Str("run_id", runID).Logger()
			runDir := filepath.Join(a.cfg.OutputDir, runID)
			if err := os.MkdirAll(runDir, 0o755); err != nil {
				return fmt.Errorf("create run dir: %w", err)
			}
			data, err := a.cfg.YAML()
			if err != nil {
				return fmt.Errorf("encode run config: %w", err)
			}
			if err := os.WriteFile(filepath.Join(runDir, "config.yaml"), data, 0o644); err != nil {
				return fmt.Errorf("write run config: %w", err)
			}

			inputDim, numClasses, err := shapeOf(ds)
			if err != nil {
				return err
			}
			model, err := simple.NewModel(a.cfg.ModelConfig(inputDim, numClasses))
			if err != nil {
				return err
			}
			model.SetLogger(logging.Component(log, "trainer"))

			loaderLog := logging.Component(log, "loader")
			l, err := loader.New(ds, a.cfg.LoaderOptions(&loaderLog))
			if err != nil {
				return err
			}
			defer l.Close()

			log.Info().
				Str("dataset", ds.Name()).
				Int("samples", ds.Len()).
				Int("input_dim", inputDim).
				Int("classes", numClasses).
				Int("epochs", model.Config.Epochs).
				Msg("training started")

			out := cmd.OutOrStdout()
			history, err := model.Train(cmd.Context(), l, func(s simple.EpochStats) {
				fmt.Fprintf(out, "epoch %d/%d: loss %.4f accuracy %.3f (%s)\n",
					s.Epoch, model.Config.Epochs, s.Loss, s.Accuracy, s.Duration.Round(time.Millisecond))
			})
			if err != nil {
				return err
			}

			ckpt := filepath.Join(runDir, "model.gob")
			if err := model.Save(ckpt); err != nil {
				return err
			}
			curve := filepath.Join(runDir, "training.png")
			if err := report.TrainingCurve(curve, "run "+runID, history); err != nil {
				log.Warn().Err(err).Msg("training curve not written")
			}

			if evalManifest != "" {
				if err := evaluate(cmd, a, model, evalManifest, evalImageDir); err != nil {
					return err
				}
			}

			log.Info().Str("checkpoint", ckpt).Msg("training done")
			fmt.Fprintf(out, "run %s written to %s\n", runID, runDir)
			return nil
		},
	}
	cmd.Flags().IntVar(&epochs, "epochs", 0, "number of epochs (overrides training.epochs)")
	cmd.Flags().StringVar(&evalManifest, "eval-manifest", "", "manifest of a held-out images dataset to evaluate after training")
	cmd.Flags().StringVar(&evalImageDir, "eval-image-dir", "", "image directory of the held-out dataset")
	return cmd
}

// shapeOf derives the model's input size from the first example and the
// number of classes from the labels.
func shapeOf(ds datasets.Dataset) (inputDim, numClasses int, err error) {
	s, err := ds.Example(0)
	if err != nil {
		return 0, 0, err
	}
	inputDim = s.Feature.Size()

	if s.Label.Rank() == 1 && s.Label.Size() > 1 {
		// One-hot targets carry the class count in their shape.
		return inputDim, s.Label.Size(), nil
	}
	labeled, ok := ds.(datasets.Labeled)
	if !ok {
		return 0, 0, fmt.Errorf("dataset %s does not report its labels; use one_hot to set the class count", ds.Name())
	}
	numClasses = len(labeled.Classes())
	for _, l := range labeled.Labels() {
		numClasses = max(numClasses, l+1)
	}
	return inputDim, max(numClasses, 2), nil
}

func evaluate(cmd *cobra.Command, a *app, model *simple.Model, manifest, imageDir string) error {
	if imageDir == "" {
		imageDir = filepath.Dir(manifest)
	}
	ds, err := datasets.NewImageDataset(manifest, imageDir, a.cfg.DatasetOptions(logging.Component(a.log, "datasets"))...)
	if err != nil {
		return err
	}
	opts := a.cfg.LoaderOptions(nil)
	opts.Shuffle = false
	opts.DropLast = false
	l, err := loader.New(ds, opts)
	if err != nil {
		return err
	}
	defer l.Close()

	stats, err := model.Evaluate(cmd.Context(), l)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "eval %s: loss %.4f accuracy %.3f over %d samples\n",
		ds.Name(), stats.Loss, stats.Accuracy, stats.Samples)
	return nil
}
