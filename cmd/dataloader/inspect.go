package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/dataloader/datasets"
	"github.com/Noofbiz/dataloader/report"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		plotPath string
		samples  int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print size, classes and sample shapes of the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := a.openDataset()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dataset: %s\n", ds.Name())
			fmt.Fprintf(out, "samples: %d\n", ds.Len())

			n := min(samples, ds.Len())
			for i := range n {
				s, err := ds.Example(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "example %d: feature %v label %v\n", i, s.Feature.Shape, labelString(s.Label))
			}

			labeled, ok := ds.(datasets.Labeled)
			if !ok {
				return nil
			}
			labels, classes := labeled.Labels(), labeled.Classes()
			numClasses := len(classes)
			for _, l := range labels {
				numClasses = max(numClasses, l+1)
			}
			counts := report.ClassCounts(labels, numClasses)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "label\tclass\tcount")
			for i, c := range counts {
				name := "-"
				if i < len(classes) {
					name = classes[i]
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\n", i, name, c)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if plotPath != "" {
				if err := report.ClassHistogram(plotPath, ds.Name(), labels, classes); err != nil {
					return err
				}
				a.log.Info().Str("path", plotPath).Msg("class histogram written")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&plotPath, "plot", "", "write a class histogram to this file (.png, .svg, .pdf)")
	cmd.Flags().IntVar(&samples, "samples", 1, "number of examples to decode and describe")
	return cmd
}

func labelString(a datasets.Array) string {
	if a.Rank() == 0 {
		return fmt.Sprint(a.Data[0])
	}
	return fmt.Sprint(a.Shape)
}
