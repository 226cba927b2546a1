package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/hearth/internal/store"
)

// DefaultWatchInterval is how often the watcher polls the job.
const DefaultWatchInterval = 500 * time.Millisecond

// watchLogLines is how many trailing log lines are shown.
const watchLogLines = 6

// JobLoader reads a job by id.
type JobLoader interface {
	GetJob(ctx context.Context, id string) (*store.Job, error)
}

type jobMsg struct {
	job *store.Job
}

type jobErrMsg struct {
	err error
}

type pollTickMsg struct{}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
)

// watchModel polls one job and renders its progress.
type watchModel struct {
	ctx      context.Context
	loader   JobLoader
	jobID    string
	interval time.Duration

	job      *store.Job
	err      error
	detached bool

	bar  progress.Model
	spin spinner.Model
}

func newWatchModel(ctx context.Context, loader JobLoader, jobID string, interval time.Duration) watchModel {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	return watchModel{
		ctx:      ctx,
		loader:   loader,
		jobID:    jobID,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(50)),
		spin:     s,
	}
}

func (m watchModel) fetch() tea.Msg {
	job, err := m.loader.GetJob(m.ctx, m.jobID)
	if err != nil {
		return jobErrMsg{err: err}
	}
	return jobMsg{job: job}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.fetch)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.detached = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		w := msg.Width - 4
		if w > 80 {
			w = 80
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case jobMsg:
		m.job = msg.job
		if m.job.Status.Terminal() {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return pollTickMsg{} })

	case jobErrMsg:
		m.err = msg.err
		return m, tea.Quit

	case pollTickMsg:
		return m, m.fetch

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	if m.job == nil {
		if m.err != nil {
			return failureStyle.Render("✗ "+m.err.Error()) + "\n"
		}
		return m.spin.View() + " loading job " + m.jobID + "\n"
	}
	job := m.job

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s job %s", job.Type, job.ID)))
	b.WriteString("\n")

	switch job.Status {
	case store.JobSuccess:
		b.WriteString(successStyle.Render("✓ succeeded"))
	case store.JobFailed:
		b.WriteString(failureStyle.Render("✗ failed"))
	default:
		b.WriteString(fmt.Sprintf("%s %s", m.spin.View(), strings.ToLower(string(job.Status))))
	}
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(job.Progress) / 100))
	b.WriteString("\n")

	if tail := lastLines(job.Logs, watchLogLines); len(tail) > 0 {
		b.WriteString("\n")
		for _, line := range tail {
			b.WriteString(logStyle.Render(line))
			b.WriteString("\n")
		}
	}
	if job.Error != nil {
		b.WriteString("\n")
		b.WriteString(failureStyle.Render(*job.Error))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(failureStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	if !job.Status.Terminal() {
		b.WriteString(helpStyle.Render("[q] Detach (the job keeps running)"))
		b.WriteString("\n")
	}
	return b.String()
}

func lastLines(logs string, n int) []string {
	logs = strings.TrimRight(logs, "\n")
	if logs == "" {
		return nil
	}
	lines := strings.Split(logs, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// RunWatch shows a job until it finishes or the user detaches. It returns
// the last state seen, which is not terminal after a detach.
func RunWatch(ctx context.Context, loader JobLoader, jobID string, interval time.Duration) (*store.Job, error) {
	m := newWatchModel(ctx, loader, jobID, interval)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, err
	}
	fm := final.(watchModel)
	if fm.err != nil {
		return fm.job, fm.err
	}
	return fm.job, nil
}
