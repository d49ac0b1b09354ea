// Package pathlist reads work-directory lists from plain text files, one
// path per line.
package pathlist

import (
	"fmt"
	"os"
	"strings"
)

// Parse reads one work-directory path per line. Line endings are removed but
// nothing else is trimmed; interior blank lines are kept; there is no comment
// syntax and no deduplication. A missing file is a fatal input error.
func Parse(filename string) ([]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open file %q: %w", filename, err)
	}
	return splitLines(string(data)), nil
}

// splitLines mirrors simple line-splitting: the trailing newline does not
// produce an empty final entry, and both \n and \r\n endings are accepted.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
