package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mpataki/dtm/internal/batchfile"
	"github.com/mpataki/dtm/internal/config"
	"github.com/mpataki/dtm/internal/dispatch"
	"github.com/mpataki/dtm/internal/executor"
	"github.com/mpataki/dtm/internal/logging"
	"github.com/mpataki/dtm/internal/models"
	"github.com/mpataki/dtm/internal/pathlist"
	"github.com/mpataki/dtm/internal/report"
	"github.com/mpataki/dtm/internal/script"
	"github.com/mpataki/dtm/internal/storage"
	"github.com/mpataki/dtm/internal/tui"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dtm",
		Short: "Distributed Task Manager",
		Long:  "dtm fans a command out across many work directories with a bounded worker pool.",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newScriptCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newDeleteCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	store, err := openStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	app := tui.NewApp(store)
	p := tea.NewProgram(app, tea.WithAltScreen())

	_, err = p.Run()
	return err
}

// openStorage wires config through to an open database, the shared setup of
// every subcommand.
func openStorage() (*storage.Storage, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <command> <path_file>",
		Short: "Run a command in every directory listed in path_file",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchFile, _ := cmd.Flags().GetString("batch-file")
			workers, _ := cmd.Flags().GetInt("processes")
			shell, _ := cmd.Flags().GetBool("shell")
			capture, _ := cmd.Flags().GetBool("pipe-stdout")
			timeoutSec, _ := cmd.Flags().GetFloat64("timeout")
			levelName, _ := cmd.Flags().GetString("logging-level")
			envPairs, _ := cmd.Flags().GetStringArray("env")

			if batchFile == "" && len(args) != 2 {
				return fmt.Errorf("expected <command> <path_file> arguments (or --batch-file)")
			}
			if batchFile != "" && len(args) != 0 {
				return fmt.Errorf("--batch-file replaces the <command> <path_file> arguments")
			}

			level, err := logging.ParseLevel(levelName)
			if err != nil {
				return err
			}

			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}

			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			log, err := logging.New(level, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer log.Close()

			var commands, paths []string
			opts := dispatch.Options{
				Workers: workers,
				Shell:   shell,
				Capture: capture,
				Timeout: time.Duration(timeoutSec * float64(time.Second)),
				Env:     env,
			}

			if batchFile != "" {
				f, err := batchfile.Parse(batchFile)
				if err != nil {
					return err
				}
				commands, paths = f.CommandsAndPaths()
				if f.Workers > 0 {
					opts.Workers = f.Workers
				}
				opts.Shell = opts.Shell || f.Shell
				opts.Capture = opts.Capture || f.Capture
				if f.Timeout > 0 {
					opts.Timeout = f.TimeoutDuration()
				}
				// CLI -e overrides the file's env on key collisions.
				opts.Env = mergeEnv(f.Env, env)
			} else {
				commands = []string{args[0]}
				paths, err = pathlist.Parse(args[1])
				if err != nil {
					return err
				}
			}

			store, err := storage.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			batchID, err := store.CreateBatch(&models.Batch{
				Command:   strings.Join(uniqueCommands(commands), "; "),
				PathCount: len(paths),
				Workers:   opts.Workers,
				Shell:     opts.Shell,
				Capture:   opts.Capture,
				Timeout:   opts.Timeout,
				Status:    models.BatchRunning,
			})
			if err != nil {
				return fmt.Errorf("failed to record batch: %w", err)
			}

			disp := dispatch.New(executor.New(log), log)
			results, err := disp.Dispatch(commands, paths, opts)
			if err != nil {
				return err
			}

			writer := report.NewWriter(".", log)
			if err := writer.Write(results); err != nil {
				return err
			}

			if err := store.FinishBatch(batchID, results); err != nil {
				log.Warningf("Failed to record batch results: %v", err)
			}

			// Per-task failures are reported through status.txt and
			// failed_paths.txt, not the exit code.
			return nil
		},
	}

	cmd.Flags().IntP("processes", "p", 0, "Number of worker processes (default: CPU count)")
	cmd.Flags().BoolP("shell", "s", false, "Run the command through the shell")
	cmd.Flags().Bool("pipe-stdout", false, "Capture child output in memory instead of log.txt files")
	cmd.Flags().Float64P("timeout", "t", 0, "Per-task timeout in seconds (0: no limit)")
	cmd.Flags().StringP("logging-level", "l", "info", "Console logging level (debug, info, warning, error)")
	cmd.Flags().StringArrayP("env", "e", nil, "Extra KEY=VALUE for the child environment (repeatable)")
	cmd.Flags().String("batch-file", "", "YAML batch file instead of <command> <path_file>")
	return cmd
}

func newScriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script <file.lua>",
		Short: "Run a Lua batch script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := args[0]
			levelName, _ := cmd.Flags().GetString("logging-level")

			if !script.IsScript(scriptPath) {
				return fmt.Errorf("not a Lua script: %s", scriptPath)
			}

			level, err := logging.ParseLevel(levelName)
			if err != nil {
				return err
			}

			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.EnsureDataDir(); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			log, err := logging.New(level, cfg.LogFile)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer log.Close()

			disp := dispatch.New(executor.New(log), log)
			rt := script.NewRuntime(disp, log)

			if err := rt.Execute(scriptPath); err != nil {
				return fmt.Errorf("script failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringP("logging-level", "l", "info", "Console logging level (debug, info, warning, error)")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			batches, err := store.ListBatches(20)
			if err != nil {
				return err
			}

			if len(batches) == 0 {
				fmt.Println("No batches found.")
				return nil
			}

			for _, b := range batches {
				fmt.Printf("#%d [%s] %d dirs, %d workers: %s\n",
					b.ID, b.Status, b.PathCount, b.Workers,
					truncate(b.Command, 50))
			}

			return nil
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch and its task results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid batch ID: %w", err)
			}

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			batch, err := store.GetBatch(batchID)
			if err != nil {
				return fmt.Errorf("failed to get batch: %w", err)
			}

			fmt.Printf("Batch #%d: %s\n", batch.ID, batch.Command)
			fmt.Printf("Status: %s\n", batch.Status)
			fmt.Printf("Directories: %d  Workers: %d\n", batch.PathCount, batch.Workers)
			if batch.Timeout > 0 {
				fmt.Printf("Timeout: %s\n", batch.Timeout)
			}
			if batch.FailedCount > 0 {
				fmt.Printf("Failed: %d\n", batch.FailedCount)
			}

			tasks, err := store.GetTasksForBatch(batchID)
			if err != nil {
				return err
			}

			if len(tasks) > 0 {
				fmt.Println("\nTasks:")
				for _, task := range tasks {
					fmt.Printf("  %d. %s [%s] exit %d\n",
						task.SequenceNum, task.WorkDir, task.Status, task.ExitCode)
				}
			}

			return nil
		},
	}
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Delete a batch and its task results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid batch ID: %w", err)
			}

			store, err := openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteBatch(batchID); err != nil {
				return fmt.Errorf("failed to delete batch: %w", err)
			}

			fmt.Printf("Deleted batch #%d\n", batchID)
			return nil
		},
	}
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid env pair %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

func mergeEnv(base, overrides map[string]string) map[string]string {
	if len(base) == 0 {
		return overrides
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// uniqueCommands collapses a replicated command list for display.
func uniqueCommands(commands []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range commands {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
