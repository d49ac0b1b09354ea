// Package report renders the summary artifacts written after a batch
// completes: status.txt with one row per task, and failed_paths.txt listing
// the work directories whose task exited non-zero.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/dtm/internal/logging"
	"github.com/mpataki/dtm/internal/models"
)

const (
	StatusFileName      = "status.txt"
	FailedPathsFileName = "failed_paths.txt"

	numericColumnWidth = 10
)

// Writer writes the summary files into Dir.
type Writer struct {
	Dir string
	log *logging.Logger
}

func NewWriter(dir string, log *logging.Logger) *Writer {
	if log == nil {
		log = logging.Discard()
	}
	return &Writer{Dir: dir, log: log}
}

// Write renders status.txt for every result and failed_paths.txt for the
// failed ones. failed_paths.txt is not created when no task failed. Task
// outcomes are already final by the time this runs, so a write failure here
// loses only the report, never the results.
func (w *Writer) Write(results []models.TaskResult) error {
	status := FormatStatus(results)
	statusPath := filepath.Join(w.Dir, StatusFileName)
	if err := os.WriteFile(statusPath, []byte(status), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", StatusFileName, err)
	}
	w.log.Infof("Task status written to %q.", statusPath)

	failed := FailedPaths(results)
	if len(failed) == 0 {
		return nil
	}

	failedPath := filepath.Join(w.Dir, FailedPathsFileName)
	var b strings.Builder
	for _, p := range failed {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(failedPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FailedPathsFileName, err)
	}
	w.log.Infof("Paths to failed tasks written to %q.", failedPath)

	return nil
}

// FormatStatus renders the fixed-width table:
//
//	Path                 PID      PPID    Status
//	--------------------------------------------
//
// The path column is 5 wider than the longest path among the results; the
// numeric and status columns are right-aligned at 10 characters.
func FormatStatus(results []models.TaskResult) string {
	pathWidth := 5 + longestPath(results)

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s%*s%*s%*s\n", pathWidth, "Path",
		numericColumnWidth, "PID", numericColumnWidth, "PPID", numericColumnWidth, "Status")
	b.WriteString(strings.Repeat("-", pathWidth+3*numericColumnWidth))
	b.WriteByte('\n')

	for _, r := range results {
		fmt.Fprintf(&b, "%-*s%*d%*d%*s\n", pathWidth, r.WorkDir,
			numericColumnWidth, r.PID, numericColumnWidth, r.PPID, numericColumnWidth, r.Status)
	}

	return b.String()
}

func longestPath(results []models.TaskResult) int {
	longest := 0
	for _, r := range results {
		if len(r.WorkDir) > longest {
			longest = len(r.WorkDir)
		}
	}
	return longest
}

// FailedPaths returns the work directories whose task exited non-zero, in
// dispatch order.
func FailedPaths(results []models.TaskResult) []string {
	var failed []string
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r.WorkDir)
		}
	}
	return failed
}

// ReadFailedPaths reads a failed_paths.txt back into the list of paths it
// was written from. A missing file means no task failed.
func ReadFailedPaths(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	s := strings.TrimSuffix(string(data), "\n")
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, "\n"), nil
}
