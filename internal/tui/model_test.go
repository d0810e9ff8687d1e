package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatwire/internal/chat"
)

func newTestModel() *Model {
	return NewModel(chat.NewCoordinator(chat.Options{}))
}

func TestRenderMessageRoles(t *testing.T) {
	m := newTestModel()
	wrap := lipgloss.NewStyle().Width(40)

	out := m.renderMessage(chat.Message{Role: chat.RoleUser, Content: "hi"}, wrap)
	if !strings.Contains(out, "you") || !strings.Contains(out, "hi") {
		t.Fatalf("user render = %q", out)
	}

	out = m.renderMessage(chat.Message{Role: chat.RoleAssistant, Content: "hello"}, wrap)
	if !strings.Contains(out, "assistant") {
		t.Fatalf("assistant render = %q", out)
	}
}

func TestRenderMessageAttachments(t *testing.T) {
	m := newTestModel()
	wrap := lipgloss.NewStyle().Width(40)

	out := m.renderMessage(chat.Message{
		Role:        chat.RoleAssistant,
		Content:     "here",
		Attachments: []chat.Attachment{{Name: "image_12345678.png"}},
	}, wrap)
	if !strings.Contains(out, "image_12345678.png") {
		t.Fatalf("attachment name missing: %q", out)
	}
}

func TestFooterShowsError(t *testing.T) {
	m := newTestModel()
	m.store.SetError("model unavailable")

	if out := m.renderFooter(); !strings.Contains(out, "model unavailable") {
		t.Fatalf("footer = %q", out)
	}
}

func TestWindowSizeMakesReady(t *testing.T) {
	m := newTestModel()
	if m.ready {
		t.Fatal("model should start unready")
	}

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = updated.(*Model)
	if !m.ready {
		t.Fatal("window size should make the model ready")
	}
	if view := m.View(); view == "…" {
		t.Fatal("ready model should render the full view")
	}
}

func TestSendDoneStopsWaiting(t *testing.T) {
	m := newTestModel()
	m.sending = true

	updated, _ := m.Update(sendDoneMsg{res: chat.SendResult{Success: true}})
	m = updated.(*Model)
	if m.sending {
		t.Fatal("sendDoneMsg should clear the sending flag")
	}
}
