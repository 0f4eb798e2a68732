package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents the current view in the confirmation TUI.
type ViewState int

const (
	ReviewView ViewState = iota
	ConfirmView
)

// SubscriptionItem is one planned migration shown in the review list.
type SubscriptionItem struct {
	ID       string
	Customer string
	Status   string
	Monthly  string
}

var _ list.Item = SubscriptionItem{}

func (i SubscriptionItem) FilterValue() string { return i.ID }
func (i SubscriptionItem) Title() string       { return i.ID }
func (i SubscriptionItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.Customer, i.Status)
	if i.Monthly != "" {
		desc = fmt.Sprintf("%s • %s/mo", desc, i.Monthly)
	}
	return desc
}

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up    key.Binding
	down  key.Binding
	enter key.Binding
	back  key.Binding
	yes   key.Binding
	no    key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "continue")),
		back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "abort")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.enter, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.back, k.yes, k.no, k.quit},
	}
}

// Model is the pre-flight review: browse the subscriptions about to move,
// then answer the prompt. Accepted reports the user's decision after the
// program exits.
type Model struct {
	view     ViewState
	prompt   string
	subs     list.Model
	accepted bool
	decided  bool
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

// NewModel builds the review TUI over the planned migration set.
func NewModel(title, prompt string, items []SubscriptionItem) *Model {
	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
	}

	l := list.New(listItems, list.NewDefaultDelegate(), 0, 0)
	l.Title = title

	return &Model{
		view:   ReviewView,
		prompt: prompt,
		subs:   l,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Accepted reports whether the user confirmed the run.
func (m *Model) Accepted() bool { return m.decided && m.accepted }

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.subs.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ReviewView:
			return m.handleReviewKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}
	}

	var cmd tea.Cmd
	m.subs, cmd = m.subs.Update(msg)
	return m, cmd
}

func (m *Model) handleReviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.decided = true
		return m, tea.Quit
	case "enter":
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.subs, cmd = m.subs.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "n":
		m.decided = true
		m.accepted = false
		return m, tea.Quit
	case "esc":
		m.view = ReviewView
		return m, nil
	case "y", "enter":
		m.decided = true
		m.accepted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.view {
	case ReviewView:
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
		return fmt.Sprintf("%s\n\n%s", m.subs.View(), helpView)
	case ConfirmView:
		title := styles.title.Render(m.prompt)
		info := fmt.Sprintf("\n%d subscriptions selected\n", len(m.subs.Items()))
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.back})
		return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
	default:
		return ""
	}
}

// Confirm runs the review TUI and blocks until the user decides. A non-tty
// environment surfaces the program error; callers fall back to --yes there.
func Confirm(title, prompt string, items []SubscriptionItem) (bool, error) {
	model := NewModel(title, prompt, items)
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return false, err
	}
	return model.Accepted(), nil
}
