// Package dispatch fans one or more commands out across many work
// directories under a bounded worker pool and collects results in submission
// order.
package dispatch

import (
	"fmt"
	"time"

	"github.com/mpataki/dtm/internal/executor"
	"github.com/mpataki/dtm/internal/logging"
	"github.com/mpataki/dtm/internal/models"
	"github.com/mpataki/dtm/internal/pool"
)

// DefaultProgressInterval is how often the dispatcher reports the count of
// still-pending tasks while a batch is outstanding.
const DefaultProgressInterval = 15 * time.Second

// Options configure one batch.
type Options struct {
	// Workers bounds concurrent executions. <= 0 means the host CPU count.
	Workers int
	Shell   bool
	Env     map[string]string
	// Capture buffers child output in memory instead of writing log.txt
	// files into the work directories.
	Capture bool
	// Timeout applies per task. Zero means no limit.
	Timeout time.Duration
}

func (o Options) outputMode() models.OutputMode {
	if o.Capture {
		return models.OutputCapture
	}
	return models.OutputLogFile
}

// Dispatcher submits tasks to an Executor through a bounded pool.
type Dispatcher struct {
	exec *executor.Executor
	log  *logging.Logger

	// ProgressInterval overrides DefaultProgressInterval; tests shorten it.
	ProgressInterval time.Duration
}

func New(exec *executor.Executor, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Discard()
	}
	return &Dispatcher{exec: exec, log: log}
}

// ReconcileCommands pairs commands with work directories. A single command is
// replicated once per directory; a list must match the directory count
// exactly. Any other length is a configuration error.
func ReconcileCommands(commands []string, pathCount int) ([]string, error) {
	switch {
	case len(commands) == 1:
		out := make([]string, pathCount)
		for i := range out {
			out[i] = commands[0]
		}
		return out, nil
	case len(commands) == pathCount:
		return commands, nil
	default:
		return nil, fmt.Errorf(
			"the number of commands must equal the number of work directories: got %d commands and %d work directories",
			len(commands), pathCount)
	}
}

// Dispatch runs each command in its paired work directory, at most
// opts.Workers at a time, and returns one TaskResult per path in the order
// the paths were given. Configuration errors are returned before any process
// is spawned; per-task failures never abort sibling tasks.
func (d *Dispatcher) Dispatch(commands []string, paths []string, opts Options) ([]models.TaskResult, error) {
	commands, err := ReconcileCommands(commands, len(paths))
	if err != nil {
		d.log.Errorf("%v", err)
		return nil, err
	}
	for i, c := range commands {
		if c == "" {
			err := fmt.Errorf("command for work directory %q is empty", paths[i])
			d.log.Errorf("%v", err)
			return nil, err
		}
	}

	p := pool.New[models.TaskResult](opts.Workers, len(paths))
	d.log.Debugf("Initiated pool of %d workers.", p.Workers())

	d.log.Debugf("Dispatching %d tasks to worker pool...", len(paths))
	for i := range paths {
		spec := models.TaskSpec{
			Command: commands[i],
			WorkDir: paths[i],
			Shell:   opts.Shell,
			Env:     opts.Env,
			Output:  opts.outputMode(),
			Timeout: opts.Timeout,
		}
		if err := p.Submit(func() models.TaskResult {
			result, execErr := d.exec.Execute(spec)
			if execErr != nil {
				// Execute only errors on the empty-command precondition,
				// which was validated above; absorb defensively anyway.
				return models.TaskResult{
					WorkDir:  spec.WorkDir,
					ExitCode: 1,
					Status:   models.TaskError,
					Message:  execErr.Error(),
				}
			}
			return result
		}); err != nil {
			return nil, err
		}
	}

	stopProgress := d.reportProgress(p)
	results := p.Wait()
	stopProgress()
	d.log.Debugf("Joined worker pool; retrieved %d results.", len(results))

	return results, nil
}

// Run is the single-command convenience over Dispatch.
func (d *Dispatcher) Run(command string, paths []string, opts Options) ([]models.TaskResult, error) {
	return d.Dispatch([]string{command}, paths, opts)
}

// Functions runs independent units of work under the same bounded pool
// discipline as Dispatch: at most `workers` in flight, every unit runs to
// completion, results in input order. The pool is closed and joined before
// results are returned, matching the process dispatcher's contract.
func (d *Dispatcher) Functions(fns []func() any, workers int) []any {
	p := pool.New[any](workers, len(fns))
	d.log.Debugf("Initiated pool of %d workers.", p.Workers())

	d.log.Debugf("Dispatching %d tasks to worker pool...", len(fns))
	for _, fn := range fns {
		p.Submit(fn)
	}

	stopProgress := d.reportProgress(p)
	results := p.Wait()
	stopProgress()
	d.log.Debugf("Joined worker pool; retrieved %d results.", len(results))

	return results
}

type pender interface{ Pending() int }

// reportProgress logs the pending-task count on an interval until the
// returned stop function is called. Informational only; not part of the
// dispatch contract.
func (d *Dispatcher) reportProgress(p pender) func() {
	interval := d.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				d.log.Debugf("Number of tasks pending: %d", p.Pending())
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
