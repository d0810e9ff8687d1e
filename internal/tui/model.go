// Package tui is the interactive chat surface: a viewport transcript, a
// one-line input and a status bar that reflects streaming progress.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatwire/internal/chat"
)

type sendDoneMsg struct{ res chat.SendResult }

// refreshMsg re-renders the transcript while a response is streaming.
type refreshMsg struct{}

// Model is the bubbletea model for the chat screen.
type Model struct {
	coordinator *chat.Coordinator
	store       *chat.Store

	styles styles

	width  int
	height int
	ready  bool

	input textarea.Model
	vp    viewport.Model
	spin  spinner.Model

	sending bool
	doneCh  chan chat.SendResult
}

// NewModel builds the chat screen over an already-selected conversation.
func NewModel(coordinator *chat.Coordinator) *Model {
	ta := textarea.New()
	ta.Placeholder = "Type a message, Enter sends. Esc quits."
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetHeight(1)
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		coordinator: coordinator,
		store:       coordinator.Store(),
		styles:      newStyles(),
		width:       100,
		height:      30,
		input:       ta,
		spin:        sp,
	}
}

func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 6
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.vp = viewport.New(m.width, vpHeight)
			m.ready = true
		} else {
			m.vp.Width = m.width
			m.vp.Height = vpHeight
		}
		m.input.SetWidth(max(10, m.width-6))
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.onEnter()
		case tea.KeyPgUp:
			m.vp.ViewUp()
			return m, nil
		case tea.KeyPgDown:
			m.vp.ViewDown()
			return m, nil
		}

	case sendDoneMsg:
		m.sending = false
		m.doneCh = nil
		m.refreshTranscript()
		m.vp.GotoBottom()
		return m, nil

	case refreshMsg:
		if m.sending {
			m.refreshTranscript()
			m.vp.GotoBottom()
			return m, m.refreshTick()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.sending {
			return m, cmd
		}
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if !m.ready {
		return "…"
	}

	title := "chatwire"
	if conv := m.store.ActiveConversation(); conv != nil {
		title = conv.Title
	}
	top := m.styles.TopBar.Render(m.styles.Title.Render(title))
	input := m.styles.InputBox.Width(m.width - 2).Render(m.input.View())
	footer := m.renderFooter()

	return lipgloss.JoinVertical(lipgloss.Left, top, m.vp.View(), input, footer)
}

func (m *Model) renderFooter() string {
	if errMsg := m.store.Err(); errMsg != "" {
		return m.styles.Footer.Render(m.styles.ErrorLine.Render(errMsg))
	}
	if m.sending {
		return m.styles.Footer.Render(m.styles.Spinner.Render(m.spin.View()) + "waiting for response…")
	}
	return m.styles.Footer.Render("Enter sends · Esc quits")
}

func (m *Model) onEnter() tea.Cmd {
	val := strings.TrimSpace(m.input.Value())
	if val == "" {
		return nil
	}
	if m.sending {
		return nil
	}

	m.input.Reset()
	m.sending = true
	m.doneCh = make(chan chat.SendResult, 1)

	go func(content string, done chan chat.SendResult) {
		done <- m.coordinator.SendMessage(context.Background(), content)
	}(val, m.doneCh)

	m.refreshTranscript()
	m.vp.GotoBottom()
	return tea.Batch(m.waitSendDone(), m.refreshTick(), m.spin.Tick)
}

func (m *Model) waitSendDone() tea.Cmd {
	done := m.doneCh
	return func() tea.Msg {
		if done == nil {
			return nil
		}
		return sendDoneMsg{res: <-done}
	}
}

func (m *Model) refreshTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m *Model) refreshTranscript() {
	m.vp.SetContent(m.renderMessages(m.vp.Width - 2))
}

func (m *Model) renderMessages(width int) string {
	if width < 20 {
		width = 20
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, msg := range m.store.Messages() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, wrap))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderMessage(msg chat.Message, wrap lipgloss.Style) string {
	var label string
	switch msg.Role {
	case chat.RoleUser:
		label = m.styles.RoleUser.Render("you")
	case chat.RoleAssistant:
		label = m.styles.RoleAI.Render("assistant")
	default:
		label = m.styles.RoleSys.Render(string(msg.Role))
	}

	body := msg.Content
	for _, att := range msg.Attachments {
		body += "\n[" + att.Name + "]"
	}
	return label + "\n" + wrap.Render(body)
}
