// Package ui implements the pre-flight confirmation terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a two-view workflow before a live migration:
//  1. [ReviewView] : Browse the subscriptions about to move, with customer, status and monthly volume
//  2. [ConfirmView] : Answer the final yes/no prompt
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern. [Confirm] wraps the program for callers that just need the decision; the --yes flag bypasses it entirely for scripted runs.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
//
// The package also owns the lipgloss [Palette] shared with the plain-text run report.
package ui
