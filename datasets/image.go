package datasets

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImageFile opens and decodes the image at path. A missing file is
// reported as ErrSampleNotFound and an unreadable one as ErrDecode.
func DecodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrSampleNotFound, err)
		}
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return img, nil
}

// channelsFor returns how many channels img is converted to under mode.
func channelsFor(img image.Image, mode ImageMode) int {
	switch mode {
	case ModeGray:
		return 1
	case ModeRGB:
		return 3
	case ModeRGBA:
		return 4
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return 1
	}
	return 3
}

// ImageToArray converts img to a [C, H, W] array of 8-bit intensities
// stored as float32, matching the layout image tensors use elsewhere.
func ImageToArray(img image.Image, mode ImageMode) Array {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	channels := channelsFor(img, mode)
	plane := width * height
	data := make([]float32, channels*plane)

	// Fast path for the common 8-bit grayscale case (FashionMNIST, scans).
	if gray, ok := img.(*image.Gray); ok && channels == 1 {
		for y := range height {
			start := gray.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			row := gray.Pix[start : start+width]
			for x, v := range row {
				data[y*width+x] = float32(v)
			}
		}
		return Array{Shape: []int{1, height, width}, Data: data}
	}

	for y := range height {
		for x := range width {
			px := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			pos := y*width + x
			if channels == 1 {
				g := color.GrayModel.Convert(px).(color.Gray)
				data[pos] = float32(g.Y)
				continue
			}
			c := color.NRGBAModel.Convert(px).(color.NRGBA)
			data[pos] = float32(c.R)
			data[plane+pos] = float32(c.G)
			data[2*plane+pos] = float32(c.B)
			if channels == 4 {
				data[3*plane+pos] = float32(c.A)
			}
		}
	}
	return Array{Shape: []int{channels, height, width}, Data: data}
}
