package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mpataki/dtm/internal/logging"
	"github.com/mpataki/dtm/internal/models"
)

// ErrEmptyCommand reports a contract violation by the caller. It is the one
// condition that is not converted into a TaskResult: an empty command is a
// defect in the calling code, not a runtime outcome of the executed command.
var ErrEmptyCommand = errors.New("command must not be empty")

// LogFileName is the per-task log written into the work directory when output
// is not captured.
const LogFileName = "log.txt"

// Executor runs one command in one work directory as a child process and
// classifies every outcome into a TaskResult.
type Executor struct {
	log *logging.Logger
}

func New(log *logging.Logger) *Executor {
	if log == nil {
		log = logging.Discard()
	}
	return &Executor{log: log}
}

// Execute runs the task described by spec. All runtime failure modes -
// missing program, invalid work directory, timeout, non-zero exit - are
// absorbed into the returned TaskResult; the error return is reserved for
// the empty-command precondition.
func (e *Executor) Execute(spec models.TaskSpec) (models.TaskResult, error) {
	if strings.TrimSpace(spec.Command) == "" {
		e.log.Errorf("The command must not be empty.")
		return models.TaskResult{}, ErrEmptyCommand
	}

	workDir := spec.WorkDir
	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return e.errorResult(spec, workDir, fmt.Sprintf("Could not resolve current directory: %v.", err)), nil
		}
		workDir = cwd
	}

	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		return e.errorResult(spec, workDir,
			fmt.Sprintf("The path %q is invalid. The directory does not exist.", workDir)), nil
	}

	ctx := context.Background()
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if spec.Shell {
		cmd = exec.CommandContext(ctx, "sh", "-c", spec.Command)
	} else {
		fields := strings.Fields(spec.Command)
		cmd = exec.CommandContext(ctx, fields[0], fields[1:]...)
	}
	cmd.Dir = workDir
	cmd.Env = mergedEnv(spec.Env)

	var captured bytes.Buffer
	if spec.Output == models.OutputCapture {
		cmd.Stdout = &captured
		cmd.Stderr = &captured
	} else {
		logFile, err := os.Create(filepath.Join(workDir, LogFileName))
		if err != nil {
			return e.errorResult(spec, workDir,
				fmt.Sprintf("Could not create %s in %q: %v.", LogFileName, workDir, err)), nil
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	e.log.Debugf("Executing command %q in working directory %q.", spec.Command, workDir)

	runErr := cmd.Run()

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}

	result := models.TaskResult{
		PID:     pid,
		PPID:    os.Getpid(),
		WorkDir: workDir,
	}
	if spec.Output == models.OutputCapture {
		result.Output = captured.String()
	}

	switch {
	case runErr == nil:
		result.Status = models.TaskCompleted
		result.ExitCode = 0
		result.Message = fmt.Sprintf("Command %q returned exit status 0. Congratulations!", spec.Command)

	case ctx.Err() == context.DeadlineExceeded:
		result.Status = models.TaskTimeout
		result.ExitCode = 1
		result.Message = fmt.Sprintf("Command %q timed out after %g seconds.",
			spec.Command, spec.Timeout.Seconds())

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Status = models.TaskError
			result.ExitCode = exitErr.ExitCode()
			result.Message = fmt.Sprintf("Command %q returned exit status %d. See details in task log.",
				spec.Command, result.ExitCode)
		} else if isNotFound(runErr) {
			result.Status = models.TaskError
			result.ExitCode = 1
			result.Message = fmt.Sprintf("Command %q could not be found.", programName(spec))
		} else {
			result.Status = models.TaskError
			result.ExitCode = 1
			result.Message = fmt.Sprintf("Command %q failed to start: %v.", spec.Command, runErr)
		}
	}

	e.log.Debugf("\t%s", result.Message)
	return result, nil
}

// errorResult builds a pre-spawn failure result. The child never ran, so the
// exit code is synthesized as 1 and PID stays 0.
func (e *Executor) errorResult(spec models.TaskSpec, workDir, msg string) models.TaskResult {
	e.log.Debugf("\t%s", msg)
	return models.TaskResult{
		PPID:     os.Getpid(),
		WorkDir:  workDir,
		ExitCode: 1,
		Status:   models.TaskError,
		Message:  msg,
	}
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

func programName(spec models.TaskSpec) string {
	if spec.Shell {
		return spec.Command
	}
	return strings.Fields(spec.Command)[0]
}

// mergedEnv layers overrides on top of the inherited environment. Overrides
// are appended last so they win on key collision.
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
