package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"media-dispatcher/internal/server"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// Model represents the main application state
type Model struct {
	state      State
	urlInput   textinput.Model
	table      table.Model
	requests   []Request
	dispatcher server.Dispatcher
	limits     server.Limits
	userID     models.UserID
	width      int
	height     int
	styles     Styles
}

// State represents different screens/states of the TUI
type State int

const (
	MainMenu State = iota
	DispatchScreen
	History
	Help
)

// Request is one submitted link and, once finished, its outcome
type Request struct {
	URL      string
	Platform string
	Status   string
	Result   string
	Done     bool
}

// outcomeMsg carries a finished dispatch back into Update
type outcomeMsg struct {
	index   int
	outcome models.Outcome
}

// Styles holds all the styling for the TUI
type Styles struct {
	title     lipgloss.Style
	subtitle  lipgloss.Style
	menuItem  lipgloss.Style
	input     lipgloss.Style
	statusBar lipgloss.Style
	table     lipgloss.Style
	success   lipgloss.Style
	failure   lipgloss.Style
}

// InitialModel creates the initial model for the TUI
func InitialModel(dispatcher server.Dispatcher, userID models.UserID, limits server.Limits) Model {
	ti := textinput.New()
	ti.Placeholder = "Paste a link..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	columns := []table.Column{
		{Title: "Platform", Width: 10},
		{Title: "URL", Width: 40},
		{Title: "Status", Width: 12},
		{Title: "Result", Width: 50},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	styles := Styles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			PaddingTop(1).
			PaddingBottom(1),
		subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			PaddingBottom(1),
		menuItem: lipgloss.NewStyle().
			PaddingLeft(2).
			PaddingRight(2).
			Margin(0, 1),
		input: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1),
		statusBar: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Padding(0, 1),
		table: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
	}

	return Model{
		state:      MainMenu,
		urlInput:   ti,
		table:      t,
		requests:   []Request{},
		dispatcher: dispatcher,
		limits:     limits,
		userID:     userID,
		styles:     styles,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case outcomeMsg:
		m.finish(msg.index, msg.outcome)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != DispatchScreen {
				return m, tea.Quit
			}

		case "esc":
			if m.state != MainMenu {
				m.state = MainMenu
				return m, nil
			}

		case "1", "2", "3":
			if m.state == MainMenu {
				m.state = map[string]State{"1": DispatchScreen, "2": History, "3": Help}[msg.String()]
				return m, nil
			}

		case "enter":
			if m.state == DispatchScreen {
				link := strings.TrimSpace(m.urlInput.Value())
				if link == "" {
					return m, nil
				}
				m.urlInput.SetValue("")
				return m, m.submit(link)
			}
		}
	}

	switch m.state {
	case DispatchScreen:
		m.urlInput, cmd = m.urlInput.Update(msg)
	case History:
		m.table, cmd = m.table.Update(msg)
	}

	return m, cmd
}

// submit records a pending request and returns the command that dispatches it
func (m *Model) submit(link string) tea.Cmd {
	index := len(m.requests)
	m.requests = append(m.requests, Request{URL: link, Status: "processing"})
	m.updateTable()

	dispatcher := m.dispatcher
	msg := models.Message{UserID: m.userID, Text: link}
	return func() tea.Msg {
		return outcomeMsg{index: index, outcome: dispatcher.Handle(context.Background(), msg)}
	}
}

// finish fills in the result of a dispatched request
func (m *Model) finish(index int, outcome models.Outcome) {
	if index < 0 || index >= len(m.requests) {
		return
	}

	r := &m.requests[index]
	r.Done = true
	r.Platform = string(outcome.Platform)
	r.Status = string(outcome.State)

	if outcome.Succeeded() {
		r.Result = fmt.Sprintf("%s %s", outcome.MediaKind, outcome.ArtifactPath)
		if outcome.Size > 0 {
			r.Result = fmt.Sprintf("%s (%s)", r.Result, utils.FormatBytes(outcome.Size))
		}
	} else {
		r.Result = server.Reply(outcome, m.limits)
	}

	m.updateTable()
}

// Requests returns the submitted requests
func (m Model) Requests() []Request {
	return m.requests
}

// View renders the UI
func (m Model) View() string {
	switch m.state {
	case DispatchScreen:
		return m.renderDispatchScreen()
	case History:
		return m.renderHistory()
	case Help:
		return m.renderHelp()
	default:
		return m.renderMainMenu()
	}
}

func (m Model) renderMainMenu() string {
	title := m.styles.title.Render("Media Dispatcher")
	subtitle := m.styles.subtitle.Render("Instagram, YouTube, TikTok, Facebook and Pinterest links")

	menu := []string{
		"1. Send a link",
		"2. History",
		"3. Help",
		"",
		"q. Quit",
	}

	var menuItems []string
	for _, item := range menu {
		if item == "" {
			menuItems = append(menuItems, "")
		} else {
			menuItems = append(menuItems, m.styles.menuItem.Render(item))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		"",
		strings.Join(menuItems, "\n"),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderDispatchScreen() string {
	title := m.styles.title.Render("Send a link")
	input := m.styles.input.Render(m.urlInput.View())

	var last string
	if n := len(m.requests); n > 0 {
		r := m.requests[n-1]
		style := m.styles.statusBar
		if r.Done && r.Status == string(models.StateSucceeded) {
			style = m.styles.success
		} else if r.Done {
			style = m.styles.failure
		}
		last = style.Render(fmt.Sprintf("%s: %s %s", r.URL, r.Status, r.Result))
	}

	instructions := []string{
		"Examples:",
		"• https://www.youtube.com/watch?v=...",
		"• https://www.instagram.com/reel/...",
		"• https://www.instagram.com/stories/<username>/",
		"• https://pin.it/...",
		"",
		"Press Enter to send • ESC to go back",
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		input,
		"",
		last,
		"",
		strings.Join(instructions, "\n"),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderHistory() string {
	title := m.styles.title.Render("History")

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		m.styles.table.Render(m.table.View()),
		"",
		"↑/↓ to navigate • ESC to go back",
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m Model) renderHelp() string {
	title := m.styles.title.Render("Help")

	helpText := []string{
		"Navigation:",
		"• Use number keys to select menu items",
		"• ESC to go back to main menu",
		"• q or Ctrl+C to quit",
		"",
		"Sending links:",
		fmt.Sprintf("• Up to %d links per minute", m.limits.QuotaLimit),
		fmt.Sprintf("• Files larger than %s are not delivered", utils.FormatBytes(m.limits.MaxFileSize)),
		"• Delivered files stay in the download directory",
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		strings.Join(helpText, "\n"),
		"",
		"ESC to go back",
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) updateTable() {
	var rows []table.Row
	for _, r := range m.requests {
		rows = append(rows, table.Row{
			r.Platform,
			r.URL,
			r.Status,
			r.Result,
		})
	}
	m.table.SetRows(rows)
}
