// Package tui provides terminal user interface components for hearth-ctl.
//
// This package uses the Bubble Tea framework for the interactive server
// picker and the job progress watcher.
//
// # Server Picker
//
// The picker lists servers grouped by game, with their health, and
// returns the action chosen for the selected server:
//
//	opts := tui.PickerOptions{AllowCreate: true, Games: catalog.All()}
//	result, err := tui.RunPicker(servers, status, opts)
//	switch result.Action {
//	case tui.ActionStart, tui.ActionStop, tui.ActionRestart, tui.ActionDelete:
//	    // enqueue the job for result.Server
//	case tui.ActionNew:
//	    // result.AddOptions holds the wizard's answers
//	}
//
// Keys: enter (show), s (start), x (stop), r (restart), d (delete),
// n (new server wizard), / (filter), q (quit).
//
// # Job Watcher
//
// RunWatch polls a job until it reaches SUCCESS or FAILED, drawing a
// progress bar and the tail of the job log. Quitting the watcher does not
// affect the job.
//
// # Dependencies
//
// Uses the Charm libraries:
//   - github.com/charmbracelet/bubbletea - TUI framework
//   - github.com/charmbracelet/bubbles - list, textinput, progress, spinner
//   - github.com/charmbracelet/lipgloss - Styling
package tui
