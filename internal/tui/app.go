package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"chatwire/internal/chat"
)

// Run selects the assistant's conversation and drives the chat screen
// until the user quits. Connections are torn down on exit.
func Run(ctx context.Context, coordinator *chat.Coordinator, assistantID string) error {
	if err := coordinator.SelectConversation(ctx, assistantID); err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}
	defer coordinator.DisconnectAll()

	p := tea.NewProgram(NewModel(coordinator), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
