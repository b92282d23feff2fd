package datasets

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by datasets and the loaders built on top of them.
// Match them with errors.Is; the typed errors below carry the details.
var (
	// ErrManifestRead indicates the manifest could not be opened or parsed.
	ErrManifestRead = errors.New("manifest read error")

	// ErrSampleNotFound indicates the image file for a manifest row is missing.
	ErrSampleNotFound = errors.New("sample not found")

	// ErrIndexOutOfRange indicates an index outside [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrShapeMismatch indicates arrays with different shapes were stacked.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDecode indicates an image file exists but could not be decoded.
	ErrDecode = errors.New("image decode error")

	// ErrLabelOutOfRange indicates a label a transform cannot encode.
	ErrLabelOutOfRange = errors.New("label out of range")
)

// IndexError reports an invalid index into a dataset.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// ShapeError reports the first array in a stack whose shape differs from
// the first one.
type ShapeError struct {
	Position int
	Want     []int
	Got      []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("inconsistent shapes: item 0 has shape %v, item %d has shape %v",
		e.Want, e.Position, e.Got)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// ManifestError reports a problem with a manifest file. Line is 1-based and
// zero when the problem is not tied to a row.
type ManifestError struct {
	Path string
	Line int
	Err  error
}

func (e *ManifestError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("manifest %s line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() []error { return []error{ErrManifestRead, e.Err} }
