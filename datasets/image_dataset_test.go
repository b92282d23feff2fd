package datasets

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeImageDataset creates n 4x3 grayscale PNGs in dir/images and a
// headerless manifest whose label for row i is i%10.
func writeImageDataset(t *testing.T, dir string, n int) string {
	t.Helper()
	rows := make([]string, n)
	for i := range n {
		name := fmt.Sprintf("img_%02d.png", i)
		writeGrayPNG(t, filepath.Join(dir, "images", name), 4, 3, uint8(i*10))
		rows[i] = fmt.Sprintf("%s,%d", name, i%10)
	}
	manifest := filepath.Join(dir, "labels.csv")
	writeCSV(t, manifest, "", rows)
	return manifest
}

func TestImageDatasetLenAndLabels(t *testing.T) {
	dir := t.TempDir()
	manifest := writeImageDataset(t, dir, 12)

	ds, err := NewImageDataset(manifest, filepath.Join(dir, "images"))
	require.NoError(t, err)
	assert.Equal(t, 12, ds.Len())
	assert.Equal(t, "ImageDataset(labels.csv)", ds.Name())

	for i := range ds.Len() {
		s, err := ds.Example(i)
		require.NoError(t, err, "Example(%d)", i)
		assert.Equal(t, []int{1, 3, 4}, s.Feature.Shape)
		assert.Equal(t, float32(i*10), s.Feature.Data[0])
		require.Equal(t, 1, s.Label.Size())
		assert.Equal(t, float32(i%10), s.Label.Data[0])
	}

	labels := ds.Labels()
	assert.Len(t, labels, 12)
	assert.Equal(t, 1, labels[11])
	assert.Nil(t, ds.Classes())
}

func TestImageDatasetIndexOutOfRange(t *testing.T) {
	dir := t.TempDir()
	manifest := writeImageDataset(t, dir, 10)

	ds, err := NewImageDataset(manifest, filepath.Join(dir, "images"))
	require.NoError(t, err)

	for _, idx := range []int{10, -1, 1000} {
		_, err := ds.Example(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrIndexOutOfRange), "index %d", idx)

		var ie *IndexError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, idx, ie.Index)
		assert.Equal(t, 10, ie.Len)
	}
}

func TestImageDatasetMissingFileFailsOnAccess(t *testing.T) {
	dir := t.TempDir()
	manifest := writeImageDataset(t, dir, 3)
	require.NoError(t, os.Remove(filepath.Join(dir, "images", "img_01.png")))

	// Construction succeeds: files are only resolved on access.
	ds, err := NewImageDataset(manifest, filepath.Join(dir, "images"))
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	_, err = ds.Example(0)
	require.NoError(t, err)

	_, err = ds.Example(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSampleNotFound))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestImageDatasetDecodeError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not an image"), 0o644))
	manifest := filepath.Join(dir, "labels.csv")
	writeCSV(t, manifest, "", []string{"bad.png,1"})

	ds, err := NewImageDataset(manifest, dir)
	require.NoError(t, err)

	_, err = ds.Example(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
	assert.False(t, errors.Is(err, ErrSampleNotFound))
}

func TestImageDatasetManifestError(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "labels.csv")
	writeCSV(t, manifest, "", []string{"only-one-column"})

	_, err := NewImageDataset(manifest, dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrManifestRead))
}

func TestImageDatasetColorModes(t *testing.T) {
	dir := t.TempDir()
	writeRGBPNG(t, filepath.Join(dir, "red.png"), 2, 2, color.NRGBA{R: 200, G: 10, B: 0, A: 255})
	manifest := filepath.Join(dir, "labels.csv")
	writeCSV(t, manifest, "", []string{"red.png,0"})

	ds, err := NewImageDataset(manifest, dir)
	require.NoError(t, err)
	s, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 2}, s.Feature.Shape)
	assert.Equal(t, float32(200), s.Feature.Data[0])
	assert.Equal(t, float32(10), s.Feature.Data[4])
	assert.Equal(t, float32(0), s.Feature.Data[8])

	gray, err := NewImageDataset(manifest, dir, WithImageMode(ModeGray))
	require.NoError(t, err)
	s, err = gray.Example(0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, s.Feature.Shape)

	rgba, err := NewImageDataset(manifest, dir, WithImageMode(ModeRGBA))
	require.NoError(t, err)
	s, err = rgba.Example(0)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 2}, s.Feature.Shape)
	assert.Equal(t, float32(255), s.Feature.Data[12])
}

func TestImageDatasetTransforms(t *testing.T) {
	dir := t.TempDir()
	manifest := writeImageDataset(t, dir, 4)

	ds, err := NewImageDataset(manifest, filepath.Join(dir, "images"),
		WithImageTransform(Resize(2, 2)),
		WithImageMode(ModeGray),
		WithTransform(ToUnitRange(), Flatten()),
		WithTargetTransform(OneHot(10)),
		WithName("fixture"),
	)
	require.NoError(t, err)
	assert.Equal(t, "fixture", ds.Name())

	s, err := ds.Example(3)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, s.Feature.Shape)
	for _, v := range s.Feature.Data {
		assert.InDelta(t, 30.0/255.0, v, 1e-2)
	}
	assert.Equal(t, []int{10}, s.Label.Shape)
	assert.Equal(t, float32(1), s.Label.Data[3])

	// A target transform failure surfaces from Example.
	strict, err := NewImageDataset(manifest, filepath.Join(dir, "images"), WithTargetTransform(OneHot(2)))
	require.NoError(t, err)
	_, err = strict.Example(3)
	assert.True(t, errors.Is(err, ErrLabelOutOfRange))
}

func TestImageDatasetCategoricalClasses(t *testing.T) {
	dir := t.TempDir()
	writeGrayPNG(t, filepath.Join(dir, "a.png"), 2, 2, 0)
	writeGrayPNG(t, filepath.Join(dir, "b.png"), 2, 2, 0)
	manifest := filepath.Join(dir, "labels.csv")
	writeCSV(t, manifest, "file,class", []string{"a.png,dress", "b.png,bag"})

	ds, err := NewImageDataset(manifest, dir, WithHeader(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"bag", "dress"}, ds.Classes())

	s, err := ds.Example(0)
	require.NoError(t, err)
	assert.Equal(t, float32(1), s.Label.Data[0])
}

func TestFindManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := FindManifest(dir)
	assert.Error(t, err)

	writeCSV(t, filepath.Join(dir, "annotations.csv"), "", []string{"a.png,0"})
	path, err := FindManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "annotations.csv"), path)
}
