package models

import "time"

type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
	TaskTimeout   TaskStatus = "timeout"
)

// OutputMode controls where a task's combined stdout/stderr goes.
type OutputMode string

const (
	// OutputLogFile writes combined stdout/stderr to log.txt inside the work directory.
	OutputLogFile OutputMode = "logfile"
	// OutputCapture buffers combined stdout/stderr in memory and returns it on the result.
	OutputCapture OutputMode = "capture"
)

// TaskSpec describes one command execution in one work directory.
// It is built immediately before submission and not mutated afterwards.
type TaskSpec struct {
	// Command is the command line to execute. In non-shell mode it is split on
	// whitespace into program and arguments; there is no quoting support, so an
	// argument containing spaces cannot be expressed. In shell mode the full
	// string is handed to `sh -c`.
	Command string

	// WorkDir is the directory the child runs in. Empty means the current
	// directory at dispatch time.
	WorkDir string

	Shell bool

	// Env is merged on top of the inherited environment; overrides win.
	Env map[string]string

	Output OutputMode

	// Timeout terminates the child when exceeded. Zero means no limit.
	Timeout time.Duration
}

// TaskResult is the terminal record of one task. It is constructed exactly
// once, at the terminal event, and never mutated.
type TaskResult struct {
	// PID is the child's process id, or 0 when the child never spawned.
	// PPID is the dispatching process.
	PID  int
	PPID int

	WorkDir  string
	ExitCode int
	Status   TaskStatus

	// Output holds combined stdout/stderr in capture mode, empty otherwise.
	Output string

	// Message is a one-line human readable description of the outcome.
	Message string
}

// Failed reports whether the task should appear in failed_paths.txt.
func (r TaskResult) Failed() bool {
	return r.ExitCode != 0
}
