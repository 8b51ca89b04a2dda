// Package tui provides the terminal user interface for `rise run --tui`.
//
// The TUI is read-only: it follows the snapshots of one streamed run and
// shows the order components were visited, the conversation so far and
// the final outcome. Users can scroll the conversation and quit with 'q'
// or Ctrl+C, which cancels the run.
//
// Usage:
//
//	ctx, cancel := context.WithCancel(ctx)
//	stream := graph.Stream(ctx, threadID, models.UserTurn(request))
//	state, err := tui.Run(stream, cancel, request, threadID, graph.Roster(), 100*time.Millisecond)
//
// Snapshots are read with a tea.Cmd, so a slow terminal slows the run
// instead of dropping snapshots.
package tui
