// Package batchfile parses YAML batch files, the CLI surface for dispatching
// a different command per work directory.
package batchfile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File describes a batch. Either `command` + `paths` (one command fanned out
// over many directories) or `tasks` (explicit command/dir pairs) must be
// given, not both.
type File struct {
	Command string   `yaml:"command"`
	Paths   []string `yaml:"paths"`
	Tasks   []Task   `yaml:"tasks"`

	Workers int               `yaml:"workers"`
	Shell   bool              `yaml:"shell"`
	Capture bool              `yaml:"capture"`
	Timeout float64           `yaml:"timeout"` // seconds
	Env     map[string]string `yaml:"env"`
}

type Task struct {
	Dir     string `yaml:"dir"`
	Command string `yaml:"command"`
}

func Parse(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch YAML: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return &f, nil
}

func (f *File) validate() error {
	hasFanOut := f.Command != "" || len(f.Paths) > 0
	hasTasks := len(f.Tasks) > 0

	switch {
	case hasFanOut && hasTasks:
		return fmt.Errorf("batch file must use either command/paths or tasks, not both")
	case hasTasks:
		for i, t := range f.Tasks {
			if t.Dir == "" {
				return fmt.Errorf("task %d is missing a dir", i+1)
			}
			if t.Command == "" {
				return fmt.Errorf("task %d is missing a command", i+1)
			}
		}
	case hasFanOut:
		if f.Command == "" {
			return fmt.Errorf("batch file specifies paths but no command")
		}
		if len(f.Paths) == 0 {
			return fmt.Errorf("batch file specifies a command but no paths")
		}
	default:
		return fmt.Errorf("batch file defines no work: expected command/paths or tasks")
	}

	if f.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %g", f.Timeout)
	}

	return nil
}

// CommandsAndPaths flattens the file into the positional command/path lists
// the dispatcher takes.
func (f *File) CommandsAndPaths() ([]string, []string) {
	if len(f.Tasks) > 0 {
		commands := make([]string, len(f.Tasks))
		paths := make([]string, len(f.Tasks))
		for i, t := range f.Tasks {
			commands[i] = t.Command
			paths[i] = t.Dir
		}
		return commands, paths
	}
	return []string{f.Command}, f.Paths
}

// TimeoutDuration converts the per-task timeout to a Duration; zero means no
// limit.
func (f *File) TimeoutDuration() time.Duration {
	return time.Duration(f.Timeout * float64(time.Second))
}
