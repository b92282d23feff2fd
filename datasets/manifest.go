package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// ManifestEntry is one manifest row: an image file relative to the image
// directory and its integer label.
type ManifestEntry struct {
	File  string
	Label int
}

// Manifest is the parsed annotations file. It is immutable once loaded.
type Manifest struct {
	Path    string
	Entries []ManifestEntry

	// Classes is set when labels were category names rather than integers;
	// Entries[i].Label then indexes into it.
	Classes []string
}

// Len returns the number of rows.
func (m *Manifest) Len() int { return len(m.Entries) }

// ReadManifest loads the CSV manifest at path. See Options for the header
// and column settings it honors.
func ReadManifest(path string, o Options) (*Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	defer file.Close()

	m, err := parseManifest(file, o)
	if err != nil {
		var me *ManifestError
		if errors.As(err, &me) {
			me.Path = path
			return nil, me
		}
		return nil, &ManifestError{Path: path, Err: err}
	}
	m.Path = path
	return m, nil
}

// parseManifest reads rows from r. Row order defines index order.
func parseManifest(r io.Reader, o Options) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	fileCol, labelCol := 0, 1

	if o.Header {
		header, err := reader.Read()
		if err == io.EOF {
			return nil, &ManifestError{Line: 1, Err: fmt.Errorf("missing header")}
		}
		if err != nil {
			return nil, &ManifestError{Line: errLine(err, 1), Err: fmt.Errorf("failed to read header: %w", err)}
		}
		fileCol, labelCol, err = resolveColumns(header, o.FileColumn, o.LabelColumn)
		if err != nil {
			return nil, &ManifestError{Line: 1, Err: err}
		}
	}

	need := max(fileCol, labelCol) + 1
	var files, rawLabels []string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ManifestError{Line: errLine(err, 0), Err: err}
		}
		// Quoted fields may span lines, so ask the reader where the record began.
		line, _ := reader.FieldPos(0)
		if len(record) < need {
			return nil, &ManifestError{Line: line, Err: fmt.Errorf("expected at least %d columns, got %d", need, len(record))}
		}
		name := strings.TrimSpace(record[fileCol])
		if name == "" {
			return nil, &ManifestError{Line: line, Err: fmt.Errorf("empty file name")}
		}
		files = append(files, name)
		rawLabels = append(rawLabels, strings.TrimSpace(record[labelCol]))
		lines = append(lines, line)
	}

	if !o.Header && looksLikeHeader(rawLabels) {
		return nil, &ManifestError{Line: lines[0], Err: fmt.Errorf("first row label %q is not an integer but all others are; use WithHeader(true) if the file has a header row", rawLabels[0])}
	}

	labels, classes, err := encodeLabels(rawLabels, lines)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Entries: make([]ManifestEntry, len(files)), Classes: classes}
	for i := range files {
		m.Entries[i] = ManifestEntry{File: files[i], Label: labels[i]}
	}
	return m, nil
}

// errLine returns the line a csv.ParseError points at, or fallback.
func errLine(err error, fallback int) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	return fallback
}

// looksLikeHeader reports whether only the first of several labels fails
// to parse as an integer, the shape of a header row read as data.
func looksLikeHeader(raw []string) bool {
	if len(raw) < 2 {
		return false
	}
	if _, err := parseLabel(raw[0]); err == nil {
		return false
	}
	for _, s := range raw[1:] {
		if _, err := parseLabel(s); err != nil {
			return false
		}
	}
	return true
}

// resolveColumns finds the file and label columns in a header row. Empty
// names fall back to the first and second columns.
func resolveColumns(header []string, fileName, labelName string) (int, int, error) {
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[normalizeColumn(col)] = i
	}

	lookup := func(name string, fallback int) (int, error) {
		if name == "" {
			if fallback >= len(header) {
				return 0, fmt.Errorf("header has %d columns, need at least %d", len(header), fallback+1)
			}
			return fallback, nil
		}
		idx, ok := colIndex[normalizeColumn(name)]
		if !ok {
			return 0, fmt.Errorf("required column %q not found in header", name)
		}
		return idx, nil
	}

	fileCol, err := lookup(fileName, 0)
	if err != nil {
		return 0, 0, err
	}
	labelCol, err := lookup(labelName, 1)
	if err != nil {
		return 0, 0, err
	}
	return fileCol, labelCol, nil
}

// encodeLabels turns raw label strings into integers. When every label is
// an integer they are kept as is and must not be negative; otherwise the
// whole column is categorical and the sorted distinct values become the
// class list. lines holds the file line of each row for errors.
func encodeLabels(raw []string, lines []int) ([]int, []string, error) {
	labels := make([]int, len(raw))
	categorical := false
	for i, s := range raw {
		v, err := parseLabel(s)
		if err != nil {
			categorical = true
			break
		}
		labels[i] = v
	}

	if !categorical {
		for i, v := range labels {
			if v < 0 {
				return nil, nil, &ManifestError{Line: lines[i], Err: fmt.Errorf("negative label %d", v)}
			}
		}
		return labels, nil, nil
	}

	classes := slices.Clone(raw)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	for i, s := range raw {
		if s == "" {
			return nil, nil, &ManifestError{Line: lines[i], Err: fmt.Errorf("empty label")}
		}
		labels[i], _ = slices.BinarySearch(classes, s)
	}
	return labels, classes, nil
}
