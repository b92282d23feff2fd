// Package report renders charts for datasets and training runs with
// gonum/plot. The image format follows the file extension (.png, .svg,
// .pdf, ...).
package report

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/dataloader/simple"
)

var (
	lossColor     = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	accuracyColor = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	barColor      = color.RGBA{R: 40, G: 120, B: 40, A: 220}
)

// TrainingCurve plots per-epoch loss and accuracy to path.
func TrainingCurve(path, title string, history []simple.EpochStats) error {
	if len(history) == 0 {
		return errors.New("no epochs to plot")
	}

	loss := make(plotter.XYs, len(history))
	acc := make(plotter.XYs, len(history))
	for i, s := range history {
		loss[i].X, loss[i].Y = float64(s.Epoch), s.Loss
		acc[i].X, acc[i].Y = float64(s.Epoch), s.Accuracy
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "value"
	p.Y.Min = 0
	p.Add(plotter.NewGrid())

	for _, series := range []struct {
		name string
		xys  plotter.XYs
		col  color.Color
	}{
		{"loss", loss, lossColor},
		{"accuracy", acc, accuracyColor},
	} {
		line, points, err := plotter.NewLinePoints(series.xys)
		if err != nil {
			return fmt.Errorf("%s series: %w", series.name, err)
		}
		line.Color = series.col
		line.Width = vg.Points(1.5)
		points.GlyphStyle.Color = series.col
		points.GlyphStyle.Radius = vg.Points(2)
		p.Add(line, points)
		p.Legend.Add(series.name, line, points)
	}
	p.Legend.Top = true

	return save(p, path, 8*vg.Inch, 5*vg.Inch)
}

// ClassCounts returns how often each label in [0, numClasses) occurs.
// Labels outside the range are ignored.
func ClassCounts(labels []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, l := range labels {
		if l >= 0 && l < numClasses {
			counts[l]++
		}
	}
	return counts
}

// ClassHistogram plots the label distribution of a dataset to path. When
// classes is empty the bars are named by label value.
func ClassHistogram(path, title string, labels []int, classes []string) error {
	n := len(classes)
	for _, l := range labels {
		n = max(n, l+1)
	}
	if n == 0 {
		return errors.New("no labels to plot")
	}

	counts := ClassCounts(labels, n)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, c := range counts {
		values[i] = float64(c)
		if i < len(classes) {
			names[i] = classes[i]
		} else {
			names[i] = strconv.Itoa(i)
		}
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "samples"
	p.Add(plotter.NewGrid())

	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	bars.Color = barColor
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	width := vg.Length(max(6, n)) * 0.8 * vg.Inch
	return save(p, path, width, 5*vg.Inch)
}

func save(p *plot.Plot, path string, w, h vg.Length) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
