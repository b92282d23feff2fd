package fashion

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// typeUint8 is the only IDX element type FashionMNIST uses.
const typeUint8 = 0x08

// MaxIDXBytes bounds the payload a header may declare. The FashionMNIST
// training images are about 47MB.
const MaxIDXBytes = 1 << 30

// IDX is a decoded IDX file: an n-dimensional array of unsigned bytes.
type IDX struct {
	Dims []int
	Data []byte
}

// Len returns the size of the first dimension, the number of items.
func (x *IDX) Len() int {
	if len(x.Dims) == 0 {
		return 0
	}
	return x.Dims[0]
}

// ItemSize returns the number of bytes per item.
func (x *IDX) ItemSize() int {
	size := 1
	for _, d := range x.Dims[1:] {
		size *= d
	}
	return size
}

// Item returns the bytes of item i.
func (x *IDX) Item(i int) []byte {
	size := x.ItemSize()
	return x.Data[i*size : (i+1)*size]
}

// ReadIDX decodes an IDX stream of unsigned bytes. Gzip-compressed input is
// detected and decompressed.
func ReadIDX(r io.Reader) (*IDX, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		defer zr.Close()
		br = bufio.NewReader(zr)
	}

	var header [4]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, errors.Wrap(err, "reading IDX magic")
	}
	if header[0] != 0 || header[1] != 0 {
		return nil, errors.Errorf("not an IDX file: magic %x", header)
	}
	if header[2] != typeUint8 {
		return nil, errors.Errorf("unsupported IDX element type 0x%02x", header[2])
	}
	rank := int(header[3])
	if rank == 0 {
		return nil, errors.New("IDX file with no dimensions")
	}

	dims := make([]int, rank)
	size := 1
	for i := range dims {
		var d uint32
		if err := binary.Read(br, binary.BigEndian, &d); err != nil {
			return nil, errors.Wrapf(err, "reading IDX dimension %d", i)
		}
		dims[i] = int(d)
		if d != 0 && size > MaxIDXBytes/int(d) {
			return nil, errors.Errorf("IDX dims %v exceed %d bytes", dims[:i+1], MaxIDXBytes)
		}
		size *= int(d)
	}

	// Grow with the bytes actually present, not with what the header claims.
	var buf bytes.Buffer
	if n, err := io.CopyN(&buf, br, int64(size)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "reading IDX data with dims %v: got %d of %d bytes", dims, n, size)
	}
	return &IDX{Dims: dims, Data: buf.Bytes()}, nil
}

// ReadIDXFile opens path and decodes it with ReadIDX.
func ReadIDXFile(path string) (*IDX, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open IDX file %q", path)
	}
	defer f.Close()
	x, err := ReadIDX(f)
	if err != nil {
		return nil, errors.Wrapf(err, "while reading %q", path)
	}
	return x, nil
}

// WriteIDX encodes x as an uncompressed IDX stream.
func WriteIDX(w io.Writer, x *IDX) error {
	if len(x.Dims) == 0 || len(x.Dims) > 255 {
		return errors.Errorf("invalid IDX rank %d", len(x.Dims))
	}
	size := 1
	for _, d := range x.Dims {
		size *= d
	}
	if size != len(x.Data) {
		return errors.Errorf("IDX dims %v need %d bytes, have %d", x.Dims, size, len(x.Data))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write([]byte{0, 0, typeUint8, byte(len(x.Dims))}); err != nil {
		return errors.Wrap(err, "writing IDX magic")
	}
	for _, d := range x.Dims {
		if err := binary.Write(bw, binary.BigEndian, uint32(d)); err != nil {
			return errors.Wrap(err, "writing IDX dimension")
		}
	}
	if _, err := bw.Write(x.Data); err != nil {
		return errors.Wrap(err, "writing IDX data")
	}
	return errors.Wrap(bw.Flush(), "flushing IDX data")
}
