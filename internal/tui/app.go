package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/rise/internal/orchestrator"
	"github.com/ShayCichocki/rise/pkg/models"
)

// SnapshotMsg carries one snapshot of the run.
type SnapshotMsg struct {
	Snapshot orchestrator.Snapshot
}

// DoneMsg signals that the run has finished.
type DoneMsg struct {
	State models.RunState
	Err   error
}

// tickMsg redraws elapsed time while the run is live.
type tickMsg time.Time

// App is the bubbletea model for a streamed run.
type App struct {
	stream  *orchestrator.Stream
	cancel  context.CancelFunc
	refresh time.Duration
	started time.Time

	header  *Header
	trace   *TracePanel
	convo   viewport.Model
	spinner spinner.Model

	state    models.RunState
	current  orchestrator.Target
	done     bool
	err      error
	quitting bool
	width    int
	height   int

	speakerStyle lipgloss.Style
	userStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewApp creates an App following stream. cancel is called when the user
// quits before the run finishes; it may be nil.
func NewApp(stream *orchestrator.Stream, cancel context.CancelFunc, request, threadID string, roster []orchestrator.Target, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	return &App{
		stream:  stream,
		cancel:  cancel,
		refresh: refresh,
		started: time.Now(),
		header:  NewHeader(request, threadID),
		trace:   NewTracePanel(roster),
		convo:   viewport.New(80, 10),
		spinner: sp,
		current: orchestrator.Target("starting"),
		width:   80,
		height:  24,

		speakerStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		userStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("28")).Bold(true),
		hintStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForSnapshot(), a.tick())
}

// waitForSnapshot reads the next snapshot, or the result once the stream is closed.
func (a *App) waitForSnapshot() tea.Cmd {
	if a.stream == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-a.stream.Snapshots()
		if !ok {
			state, err := a.stream.Wait()
			return DoneMsg{State: state, Err: err}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func (a *App) tick() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			if !a.done && a.cancel != nil {
				a.cancel()
			}
			return a, tea.Quit
		}
		var cmd tea.Cmd
		a.convo, cmd = a.convo.Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.layout()
		return a, nil

	case SnapshotMsg:
		a.applySnapshot(msg.Snapshot)
		return a, a.waitForSnapshot()

	case DoneMsg:
		a.done = true
		a.err = msg.Err
		if len(msg.State.Messages) > 0 {
			a.state = msg.State
			a.refreshConversation()
		}
		return a, nil

	case tickMsg:
		if a.done {
			return a, nil
		}
		return a, a.tick()

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) applySnapshot(s orchestrator.Snapshot) {
	failed := false
	if turn, ok := s.State.LastTurn(); ok && turn.Name == string(s.Component) {
		failed = turn.Failed()
	}
	a.trace.Add(TraceEntry{
		Seq:       s.Seq,
		Component: s.Component,
		Next:      s.Next,
		Elapsed:   s.Timestamp.Sub(a.started),
		Failed:    failed,
	})
	a.current = s.Next
	a.state = s.State
	a.refreshConversation()
}

func (a *App) refreshConversation() {
	var b strings.Builder
	for i, t := range a.state.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		speaker := a.speakerStyle.Render(t.Name)
		if t.Role == models.RoleUser {
			speaker = a.userStyle.Render("you")
		}
		b.WriteString(speaker + "\n" + t.Content)
		if t.Failed() {
			b.WriteString("\n" + a.errorStyle.Render("tool error: "+t.Error))
		}
	}
	a.convo.SetContent(lipgloss.NewStyle().Width(max(a.convo.Width, 10)).Render(b.String()))
	a.convo.GotoBottom()
}

func (a *App) layout() {
	a.header.SetWidth(a.width)
	traceWidth := a.width / 3
	if traceWidth < 30 {
		traceWidth = min(30, a.width)
	}
	body := a.height - a.header.Height() - 2
	if body < 5 {
		body = 5
	}
	a.trace.SetSize(traceWidth, body)
	a.convo.Width = max(a.width-traceWidth-2, 10)
	a.convo.Height = body
	a.refreshConversation()
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, a.trace.View(), " ", a.convo.View())
	return lipgloss.JoinVertical(lipgloss.Left, a.header.View(), body, a.footer())
}

func (a *App) footer() string {
	elapsed := time.Since(a.started).Round(100 * time.Millisecond)
	var status string
	switch {
	case a.done && a.err != nil:
		status = a.errorStyle.Render("✗ " + a.err.Error())
	case a.done:
		status = a.successStyle.Render(fmt.Sprintf("✓ completed in %d steps", a.state.Steps))
	default:
		status = fmt.Sprintf("%s %s  %s", a.spinner.View(), string(a.current), elapsed)
	}
	return status + "  " + a.hintStyle.Render("↑/↓ scroll • q quit")
}

// Done reports whether the run has finished.
func (a *App) Done() bool {
	return a.done
}

// Result returns the final state and error once Done.
func (a *App) Result() (models.RunState, error) {
	return a.state, a.err
}

// Run shows the TUI until the user quits, then returns the run's result.
// Quitting early cancels the run through cancel.
func Run(stream *orchestrator.Stream, cancel context.CancelFunc, request, threadID string, roster []orchestrator.Target, refresh time.Duration) (models.RunState, error) {
	app := NewApp(stream, cancel, request, threadID, roster, refresh)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		if cancel != nil {
			cancel()
		}
		stream.Wait()
		return models.RunState{}, fmt.Errorf("run tui: %w", err)
	}
	if app.Done() {
		return app.Result()
	}
	return stream.Wait()
}
