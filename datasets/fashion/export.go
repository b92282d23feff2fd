package fashion

import (
	"encoding/csv"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Export writes every image of ds to dir as a PNG file and a headerless
// "file,label" manifest named manifestName next to them, so the split can
// be read back with datasets.NewImageDataset(filepath.Join(dir,
// manifestName), dir). It returns the manifest path.
func Export(ds *Dataset, dir, manifestName string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating export directory %q", dir)
	}
	manifestPath := filepath.Join(dir, manifestName)
	f, err := os.Create(manifestPath)
	if err != nil {
		return "", errors.Wrapf(err, "creating manifest %q", manifestPath)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for i := range ds.Len() {
		name := fmt.Sprintf("%05d.png", i)
		if err := writePNG(filepath.Join(dir, name), ds, i); err != nil {
			return "", err
		}
		if err := w.Write([]string{name, strconv.Itoa(int(ds.labels[i]))}); err != nil {
			return "", errors.Wrapf(err, "writing manifest row %d", i)
		}
		if (i+1)%10000 == 0 {
			ds.opts.Logger.Debug().Int("written", i+1).Int("total", ds.Len()).Msg("export progress")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrapf(err, "flushing manifest %q", manifestPath)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "closing manifest %q", manifestPath)
	}

	ds.opts.Logger.Debug().
		Str("dir", dir).
		Str("manifest", manifestPath).
		Int("rows", ds.Len()).
		Msg("fashion split exported")
	return manifestPath, nil
}

func writePNG(path string, ds *Dataset, i int) error {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	if err := png.Encode(out, ds.Image(i)); err != nil {
		out.Close()
		return errors.Wrapf(err, "encoding image %d to %q", i, path)
	}
	return errors.Wrapf(out.Close(), "closing %q", path)
}
