package datasets

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty string")
	}
	return strconv.Atoi(s)
}

func normalizeColumn(col string) string {
	return strings.TrimSpace(strings.ToLower(col))
}

// FindManifest returns the first CSV file in dir. It is a convenience for
// dataset directories that ship a single annotations file next to the
// images.
func FindManifest(dir string) (string, error) {
	pattern := filepath.Join(dir, "*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no CSV files found in %s", dir)
	}
	return matches[0], nil
}
