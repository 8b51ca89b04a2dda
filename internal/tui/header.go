package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Header renders the title bar with the request being handled.
type Header struct {
	width   int
	request string
	thread  string
}

// NewHeader creates a new Header.
func NewHeader(request, thread string) *Header {
	return &Header{width: 80, request: request, thread: thread}
}

// SetWidth sets the header width.
func (h *Header) SetWidth(width int) {
	h.width = width
}

// View renders the header.
func (h *Header) View() string {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ECDC4")).
		Bold(true).
		Render("rise")

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Italic(true).
		Render("thread " + h.thread)

	request := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252")).
		Width(max(h.width-2, 10)).
		Render("› " + h.request)

	return lipgloss.NewStyle().
		Width(h.width).
		PaddingBottom(1).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", subtitle),
			request,
		))
}

// Height returns the header height in lines.
func (h *Header) Height() int {
	return lipgloss.Height(h.View())
}
