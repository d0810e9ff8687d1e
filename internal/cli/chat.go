package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chatwire/internal/chat"
	"chatwire/internal/tui"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	var (
		assistantID string
		files       []string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with an assistant",
		Long: `Send a message to an assistant and print the response.

With a message argument this is a one-shot exchange. Without one, an
interactive chat screen opens. Responses stream over a WebSocket when
available and fall back to a plain HTTP request otherwise.`,
		Example: `  # One-shot message
  chatwire chat --assistant asst_123 "Summarize today's standup"

  # Attach a file
  chatwire chat --assistant asst_123 --file report.pdf "Review this"

  # Interactive session
  chatwire chat --assistant asst_123`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if assistantID == "" {
				return fmt.Errorf("--assistant is required")
			}

			coordinator := cliCtx.Coordinator()
			ctx := cmd.Context()

			if len(args) == 0 {
				if len(files) > 0 {
					return fmt.Errorf("--file requires a one-shot message")
				}
				return tui.Run(ctx, coordinator, assistantID)
			}

			return runOneShot(ctx, cliCtx, coordinator, assistantID, args[0], files)
		},
	}

	cmd.Flags().StringVarP(&assistantID, "assistant", "a", "", "assistant id to chat with")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "file to attach (repeatable)")

	return cmd
}

func runOneShot(ctx context.Context, cliCtx *CLIContext, coordinator *chat.Coordinator, assistantID, message string, files []string) error {
	if err := coordinator.SelectConversation(ctx, assistantID); err != nil {
		return err
	}
	defer coordinator.DisconnectAll()

	attachments, err := uploadFiles(ctx, cliCtx, files)
	if err != nil {
		return err
	}

	res := coordinator.SendMessage(ctx, message, attachments...)
	if res.Err != nil {
		if msg := coordinator.Store().Err(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
		return res.Err
	}

	fmt.Println(strings.TrimSpace(res.Content))

	if last, ok := coordinator.Store().LastMessage(); ok {
		for _, att := range last.Attachments {
			fmt.Printf("  attachment: %s (%s)\n", att.Name, att.URL)
		}
	}

	return nil
}

func uploadFiles(ctx context.Context, cliCtx *CLIContext, files []string) ([]chat.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	client := cliCtx.APIClient()
	var attachments []chat.Attachment
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}

		up, err := client.UploadFile(ctx, filepath.Base(path), f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", path, err)
		}

		attachments = append(attachments, chat.Attachment{
			ID:         up.ID,
			FileID:     up.FileID,
			Name:       up.Name,
			Size:       up.Size,
			Type:       up.Type,
			URL:        up.URL,
			PreviewURL: up.PreviewURL,
		})
	}

	return attachments, nil
}
