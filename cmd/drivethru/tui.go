package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/TurboJessadakorn/drive-through-realtime-agent/core"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"
)

// Presenter callbacks arrive on orchestrator goroutines; each one is
// wrapped in a message and delivered through the bubbletea loop.
type transcriptMsg struct {
	role string
	text string
}

type orderMsg struct {
	snapshot order.Snapshot
}

type statusMsg struct {
	status string
}

type errorMsg struct {
	message string
}

// startResultMsg reports the outcome of an asynchronous Start.
type startResultMsg struct {
	err error
}

// programPresenter bridges orchestrator callbacks into the bubbletea
// message loop. Callbacks fired before SetProgram are buffered and
// flushed once the program exists, so nothing reported during wiring
// is lost.
type programPresenter struct {
	mu      sync.Mutex
	program *tea.Program
	pending []tea.Msg
}

func newProgramPresenter() *programPresenter {
	return &programPresenter{}
}

func (p *programPresenter) SetProgram(program *tea.Program) {
	p.mu.Lock()
	p.program = program
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, msg := range pending {
		program.Send(msg)
	}
}

func (p *programPresenter) send(msg tea.Msg) {
	p.mu.Lock()
	program := p.program
	if program == nil {
		p.pending = append(p.pending, msg)
	}
	p.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

func (p *programPresenter) TranscriptEntry(role, text string) {
	p.send(transcriptMsg{role: role, text: text})
}

func (p *programPresenter) OrderSummary(snapshot order.Snapshot) {
	p.send(orderMsg{snapshot: snapshot})
}

func (p *programPresenter) Status(status string) {
	p.send(statusMsg{status: status})
}

func (p *programPresenter) Error(message string) {
	p.send(errorMsg{message: message})
}

// keyMap defines the client key bindings.
type keyMap struct {
	Start key.Binding
	Stop  key.Binding
	Clear key.Binding
	Voice key.Binding
	Up    key.Binding
	Down  key.Binding
	Quit  key.Binding
}

var defaultKeyMap = keyMap{
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("x"),
		key.WithHelp("x", "stop"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear order"),
	),
	Voice: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "voice"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	roleStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("39"))

	totalStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("229"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const orderPanelWidth = 34

type model struct {
	orchestrator *orchestration.Orchestrator
	keys         keyMap

	transcript []string
	viewport   viewport.Model
	snapshot   order.Snapshot
	status     string
	lastError  string

	width  int
	height int
	ready  bool
}

func newModel(orchestrator *orchestration.Orchestrator) model {
	return model{
		orchestrator: orchestrator,
		keys:         defaultKeyMap,
		status:       "Ready to start",
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		transcriptWidth := m.transcriptWidth()
		transcriptHeight := max(m.height-6, 3)
		if !m.ready {
			m.viewport = viewport.New(transcriptWidth, transcriptHeight)
			m.ready = true
		} else {
			m.viewport.Width = transcriptWidth
			m.viewport.Height = transcriptHeight
		}
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)

	case transcriptMsg:
		entry := roleStyle.Render(displayRole(message.role)+":") + " " + message.text
		m.transcript = append(m.transcript, entry)
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case orderMsg:
		m.snapshot = message.snapshot
		return m, nil

	case statusMsg:
		m.status = message.status
		if message.status == "Connected" || message.status == "Initializing..." {
			m.lastError = ""
		}
		return m, nil

	case errorMsg:
		m.lastError = message.message
		return m, nil

	case startResultMsg:
		if message.err != nil {
			m.lastError = message.err.Error()
		}
		return m, nil
	}

	return m, nil
}

func (m model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Quit):
		m.orchestrator.Close()
		return m, tea.Quit

	case key.Matches(message, m.keys.Start):
		orchestrator := m.orchestrator
		return m, func() tea.Msg {
			return startResultMsg{err: orchestrator.Start(context.Background())}
		}

	case key.Matches(message, m.keys.Stop):
		m.orchestrator.Stop()
		return m, nil

	case key.Matches(message, m.keys.Clear):
		m.orchestrator.ClearConversation()
		return m, nil

	case key.Matches(message, m.keys.Voice):
		if err := m.orchestrator.SetVoice(nextVoice(m.orchestrator.Voice())); err != nil {
			m.lastError = err.Error()
		} else {
			m.lastError = ""
		}
		return m, nil

	case key.Matches(message, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(message, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := titleStyle.Render("Drive-Thru") + " " +
		statusStyle.Render(fmt.Sprintf("%s  voice: %s", m.status, m.orchestrator.Voice()))

	transcript := panelStyle.Width(m.transcriptWidth() + 2).Render(m.viewport.View())
	orderPanel := panelStyle.Width(orderPanelWidth).Render(m.renderOrder())
	body := lipgloss.JoinHorizontal(lipgloss.Top, transcript, orderPanel)

	footer := helpStyle.Render("s start · x stop · c clear · v voice · j/k scroll · q quit")
	if m.lastError != "" {
		footer = errorStyle.Render(m.lastError)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m model) transcriptWidth() int {
	return max(m.width-orderPanelWidth-6, 20)
}

func (m *model) refreshTranscript() {
	width := m.transcriptWidth()
	lines := make([]string, 0, len(m.transcript))
	for _, entry := range m.transcript {
		lines = append(lines, wordwrap.String(entry, width))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

func (m model) renderOrder() string {
	var b strings.Builder
	b.WriteString(totalStyle.Render("Current Order"))
	b.WriteString("\n\n")

	if len(m.snapshot.Items) == 0 {
		b.WriteString(statusStyle.Render("No items yet."))
		return b.String()
	}

	for _, item := range m.snapshot.Items {
		line := fmt.Sprintf("%d x %-12s $%s",
			item.Quantity, item.Name,
			order.FormatCents(int64(item.Quantity)*item.UnitPriceCents))
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(totalStyle.Render("Total: $" + order.FormatCents(m.snapshot.TotalCents)))
	return b.String()
}

func displayRole(role string) string {
	switch role {
	case "assistant":
		return "Assistant"
	case "user":
		return "You"
	}
	return role
}

func nextVoice(current orchestration.Voice) orchestration.Voice {
	voices := orchestration.SupportedVoices()
	for i, voice := range voices {
		if voice == current {
			return voices[(i+1)%len(voices)]
		}
	}
	return voices[0]
}
