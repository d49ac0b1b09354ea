package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/dtm/internal/models"
	"github.com/mpataki/dtm/internal/storage"
)

type View int

const (
	ViewBatchList View = iota
	ViewBatchDetail
	ViewTaskOutput
)

type App struct {
	store *storage.Storage

	view            View
	batches         []*models.Batch
	selectedIdx     int
	selectedBatch   *models.Batch
	tasks           []*models.BatchTask
	selectedTaskIdx int

	spin spinner.Model

	width  int
	height int
	err    error
}

func NewApp(store *storage.Storage) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	return &App{
		store: store,
		view:  ViewBatchList,
		spin:  s,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadBatches, a.tickCmd(), a.spin.Tick)
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningBatches() bool {
	for _, b := range a.batches {
		if b.Status == models.BatchRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case batchesLoadedMsg:
		a.batches = msg.batches
		a.err = msg.err
		return a, nil

	case tickMsg:
		// Refresh the list while a batch is still running elsewhere.
		if a.view == ViewBatchList && a.hasRunningBatches() {
			return a, tea.Batch(a.loadBatches, a.tickCmd())
		}
		// Keep ticking to detect new running batches
		return a, a.tickCmd()

	case batchDetailMsg:
		a.selectedBatch = msg.batch
		a.tasks = msg.tasks
		a.err = msg.err
		if a.err == nil {
			a.view = ViewBatchDetail
		}
		return a, nil

	case batchDeletedMsg:
		a.err = msg.err
		// Adjust selection if needed
		if a.selectedIdx >= len(a.batches)-1 && a.selectedIdx > 0 {
			a.selectedIdx--
		}
		return a, a.loadBatches
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewBatchList:
		return a.handleBatchListKey(msg)
	case ViewBatchDetail:
		return a.handleBatchDetailKey(msg)
	case ViewTaskOutput:
		return a.handleTaskOutputKey(msg)
	}
	return a, nil
}

func (a *App) handleBatchListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.batches)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.batches) > 0 && a.selectedIdx < len(a.batches) {
			return a, a.loadBatchDetail(a.batches[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadBatches

	case "d":
		if len(a.batches) > 0 && a.selectedIdx < len(a.batches) {
			return a, a.deleteBatch(a.batches[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleBatchDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewBatchList
		a.selectedBatch = nil
		a.tasks = nil
		a.selectedTaskIdx = 0

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedTaskIdx > 0 {
			a.selectedTaskIdx--
		}

	case "down", "j":
		if a.selectedTaskIdx < len(a.tasks)-1 {
			a.selectedTaskIdx++
		}

	case "enter", "o":
		if len(a.tasks) > 0 && a.selectedTaskIdx < len(a.tasks) {
			a.view = ViewTaskOutput
		}
	}

	return a, nil
}

func (a *App) handleTaskOutputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewBatchDetail

	case "ctrl+c":
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewBatchList:
		return a.viewBatchList()
	case ViewBatchDetail:
		return a.viewBatchDetail()
	case ViewTaskOutput:
		return a.viewTaskOutput()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusTimeout  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewBatchList() string {
	s := titleStyle.Render("dtm") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.batches) == 0 {
		s += "No batches yet. Run `dtm run <command> <path_file>` to create one.\n"
	} else {
		s += "Recent Batches\n"
		s += "──────────────\n"

		for i, batch := range a.batches {
			line := a.formatBatchLine(batch)
			isSelected := i == a.selectedIdx
			isRunning := batch.Status == models.BatchRunning

			if isSelected {
				line = selectedStyle.Render("▶ " + line)
			} else if isRunning {
				line = a.spin.View() + " " + line
			} else {
				// Dim finished batches
				line = "  " + dimStyle.Render(line)
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [r] refresh  [q] quit")

	return s
}

func (a *App) formatBatchLine(batch *models.Batch) string {
	status := a.formatBatchStatus(batch)
	age := a.formatAge(batch.CreatedAt)
	command := truncate(batch.Command, 35)
	return fmt.Sprintf("#%-3d %3d dirs %s  %-6s  %s", batch.ID, batch.PathCount, status, age, command)
}

func (a *App) formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%dd", days)
	}
}

func (a *App) formatBatchStatus(batch *models.Batch) string {
	switch batch.Status {
	case models.BatchRunning:
		return statusRunning.Render("● running")
	case models.BatchComplete:
		return statusComplete.Render("✓ complete")
	case models.BatchFailed:
		return statusFailed.Render(fmt.Sprintf("✗ %d failed", batch.FailedCount))
	default:
		return string(batch.Status)
	}
}

func (a *App) formatTaskStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskCompleted:
		return statusComplete.Render("✓")
	case models.TaskError:
		return statusFailed.Render("✗")
	case models.TaskTimeout:
		return statusTimeout.Render("⏱")
	default:
		return "○"
	}
}

func (a *App) viewBatchDetail() string {
	if a.selectedBatch == nil {
		return "No batch selected"
	}

	batch := a.selectedBatch

	header := fmt.Sprintf("Batch #%d: %s", batch.ID, batch.Command)
	s := titleStyle.Render(header) + "  " + a.formatBatchStatus(batch) + "\n\n"

	s += labelStyle.Render("Workers: ") + fmt.Sprintf("%d", batch.Workers)
	if batch.Shell {
		s += labelStyle.Render("  shell")
	}
	if batch.Timeout > 0 {
		s += labelStyle.Render("  timeout: ") + batch.Timeout.String()
	}
	s += "\n\n"

	s += "Tasks\n"
	s += "─────\n"

	if len(a.tasks) == 0 {
		s += "(no task results recorded)\n"
	} else {
		for i, task := range a.tasks {
			status := a.formatTaskStatus(task.Status)

			exitCode := dimStyle.Render("exit:0")
			if task.ExitCode != 0 {
				exitCode = statusFailed.Render(fmt.Sprintf("exit:%d", task.ExitCode))
			}

			line := fmt.Sprintf("%3d. %-40s %s  %s  %s",
				task.SequenceNum, truncate(task.WorkDir, 40), status, exitCode,
				dimStyle.Render(fmt.Sprintf("pid:%d", task.PID)))

			if i == a.selectedTaskIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] output  [esc] back  [q] quit")

	return s
}

func (a *App) viewTaskOutput() string {
	if len(a.tasks) == 0 || a.selectedTaskIdx >= len(a.tasks) {
		return "No task selected"
	}

	task := a.tasks[a.selectedTaskIdx]

	s := titleStyle.Render("Task: "+task.WorkDir) + "\n\n"
	s += labelStyle.Render("Status: ") + string(task.Status) +
		fmt.Sprintf("  (exit %d, pid %d, ppid %d)\n\n", task.ExitCode, task.PID, task.PPID)
	s += task.Message + "\n"

	if task.Output != "" {
		s += "\nOutput\n──────\n"
		s += task.Output + "\n"
	} else {
		s += "\n" + dimStyle.Render("(output was redirected to log.txt in the work directory)") + "\n"
	}

	s += "\n" + helpStyle.Render("[esc] back  [q] quit")

	return s
}

// Messages

type batchesLoadedMsg struct {
	batches []*models.Batch
	err     error
}

type batchDetailMsg struct {
	batch *models.Batch
	tasks []*models.BatchTask
	err   error
}

type batchDeletedMsg struct {
	batchID int64
	err     error
}

// Commands

func (a *App) loadBatches() tea.Msg {
	batches, err := a.store.ListBatches(20)
	return batchesLoadedMsg{batches: batches, err: err}
}

func (a *App) loadBatchDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		batch, err := a.store.GetBatch(id)
		if err != nil {
			return batchDetailMsg{err: err}
		}

		tasks, err := a.store.GetTasksForBatch(id)
		return batchDetailMsg{batch: batch, tasks: tasks, err: err}
	}
}

func (a *App) deleteBatch(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.store.DeleteBatch(id); err != nil {
			return batchDeletedMsg{err: err}
		}
		return batchDeletedMsg{batchID: id}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
