package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/spzconv/convert"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	dirStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateConverting modelState = iota
	stateDone
)

type fileRow struct {
	name    string
	pending bool
	outcome convert.Outcome
}

type interactiveModel struct {
	err     error
	jobs    []*job
	rows    [][]fileRow
	writes  writeResult
	spinner spinner.Model
	bar     progress.Model
	done    int
	total   int
	failed  int
	state   modelState
}

type fileDoneMsg struct {
	job     int
	index   int
	outcome convert.Outcome
}

type finishedMsg struct {
	err    error
	writes writeResult
}

func newInteractiveModel(jobs []*job) *interactiveModel {
	m := &interactiveModel{
		jobs:    jobs,
		rows:    make([][]fileRow, len(jobs)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		state:   stateConverting,
	}
	for i, j := range jobs {
		m.rows[i] = make([]fileRow, len(j.files))
		for k, f := range j.files {
			m.rows[i][k] = fileRow{name: f.Name, pending: true}
		}
		m.total += len(j.files)
	}
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q", "enter", "esc":
			if m.state == stateDone {
				return m, tea.Quit
			}
		}

	case fileDoneMsg:
		m.rows[msg.job][msg.index] = fileRow{name: msg.outcome.Input, outcome: msg.outcome}
		m.done++
		if !msg.outcome.OK() {
			m.failed++
		}

	case finishedMsg:
		m.err = msg.err
		m.writes = msg.writes
		m.failed += len(msg.writes.failed)
		m.state = stateDone

	case spinner.TickMsg:
		if m.state == stateDone {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SPZ Converter"))
	b.WriteString("\n\n")

	for i, j := range m.jobs {
		b.WriteString(dirStyle.Render(capitalize(j.dir.String())))
		b.WriteString("\n")
		for _, r := range m.rows[i] {
			b.WriteString(m.formatRow(r))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	frac := 1.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	b.WriteString(m.bar.ViewAs(frac))
	fmt.Fprintf(&b, " %d/%d\n\n", m.done, m.total)

	switch m.state {
	case stateConverting:
		b.WriteString(helpStyle.Render("converting... ctrl+c abort"))

	case stateDone:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		summary := fmt.Sprintf("Success: %d, Errors: %d", m.done-m.failed, m.failed)
		if m.failed > 0 {
			b.WriteString(errorStyle.Render(summary))
		} else {
			b.WriteString(resultStyle.Render(summary))
		}
		b.WriteString("\n")
		for _, p := range m.writes.written {
			b.WriteString("Wrote " + p + "\n")
		}
		for _, f := range m.writes.failed {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Not written %s: %v", f.path, f.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatRow(r fileRow) string {
	switch {
	case r.pending:
		if m.state == stateDone {
			return "  - " + r.name
		}
		return "  " + m.spinner.View() + " " + r.name
	case r.outcome.OK():
		return resultStyle.Render("  ✓ ") + r.name + " -> " + r.outcome.Output.Name + "  " +
			helpStyle.Render(sizeChange(r.outcome.InputSize, len(r.outcome.Output.Data)))
	default:
		return errorStyle.Render("  ✗ "+r.name) + "  " + helpStyle.Render(r.outcome.Err.Error())
	}
}

// runInteractive drives the same pipeline as run behind a TUI. When the
// user quits early it waits for the conversion goroutine, which stops
// before writing the next output, so no file is left half written.
func runInteractive(ctx context.Context, opts *options) (int, error) {
	jobs, err := planJobs(opts.cfg.Mode, opts.files)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newInteractiveModel(jobs)
	p := tea.NewProgram(m)

	done := make(chan struct{})
	go func() {
		defer close(done)
		results, err := convertAll(ctx, opts.cfg, jobs, func(ji, fi int, o convert.Outcome) {
			p.Send(fileDoneMsg{job: ji, index: fi, outcome: o})
		})
		var wr writeResult
		if err == nil {
			wr, err = writeOutputs(ctx, opts.cfg, jobs, results)
		}
		p.Send(finishedMsg{err: err, writes: wr})
	}()

	_, runErr := p.Run()
	cancel()
	select {
	case <-done:
	default:
		fmt.Fprintln(os.Stderr, "Waiting for the running batch to finish...")
		<-done
	}

	if runErr != nil {
		return 0, runErr
	}
	if m.state != stateDone {
		return m.failed, fmt.Errorf("interrupted")
	}
	return m.failed, m.err
}
