package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/rise/internal/orchestrator"
)

// TraceEntry is one visited component.
type TraceEntry struct {
	Seq       int
	Component orchestrator.Target
	Next      orchestrator.Target
	Elapsed   time.Duration
	// Failed marks a team turn that carried a tool failure.
	Failed bool
}

// TracePanel lists visited components in visit order.
type TracePanel struct {
	entries []TraceEntry
	roster  map[orchestrator.Target]bool
	width   int
	height  int

	// Styles
	titleStyle  lipgloss.Style
	borderStyle lipgloss.Style
	seqStyle    lipgloss.Style
	nodeStyle   lipgloss.Style
	teamStyle   lipgloss.Style
	arrowStyle  lipgloss.Style
	errorStyle  lipgloss.Style
	timeStyle   lipgloss.Style
}

// NewTracePanel creates a TracePanel. Components in roster are styled as teams.
func NewTracePanel(roster []orchestrator.Target) *TracePanel {
	teams := make(map[orchestrator.Target]bool, len(roster))
	for _, t := range roster {
		teams[t] = true
	}
	return &TracePanel{
		roster: teams,
		width:  40,
		height: 10,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),

		seqStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		nodeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")), // Blue

		teamStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")). // Green
			Bold(true),

		arrowStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// SetSize sets the panel dimensions including the border.
func (p *TracePanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// Add appends an entry.
func (p *TracePanel) Add(e TraceEntry) {
	p.entries = append(p.entries, e)
}

// Entries returns the entries in visit order.
func (p *TracePanel) Entries() []TraceEntry {
	return p.entries
}

// View renders the most recent entries that fit.
func (p *TracePanel) View() string {
	var b strings.Builder
	b.WriteString(p.titleStyle.Render("Trace"))
	b.WriteString("\n")

	visible := p.height - 3
	if visible < 1 {
		visible = 1
	}
	start := 0
	if len(p.entries) > visible {
		start = len(p.entries) - visible
	}

	if len(p.entries) == 0 {
		b.WriteString(p.seqStyle.Render("  waiting for the first step..."))
	}
	for i, e := range p.entries[start:] {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.renderEntry(e))
	}

	return p.borderStyle.Width(max(p.width-2, 10)).Render(b.String())
}

func (p *TracePanel) renderEntry(e TraceEntry) string {
	style := p.nodeStyle
	if p.roster[e.Component] {
		style = p.teamStyle
	}
	if e.Failed {
		style = p.errorStyle
	}
	next := string(e.Next)
	if e.Next == orchestrator.Terminate {
		next = "end"
	}
	return fmt.Sprintf("%s %s %s %s %s",
		p.seqStyle.Render(fmt.Sprintf("%3d", e.Seq)),
		style.Render(string(e.Component)),
		p.arrowStyle.Render("→"),
		p.nodeStyle.Render(next),
		p.timeStyle.Render(fmt.Sprintf("+%.2fs", e.Elapsed.Seconds())),
	)
}
