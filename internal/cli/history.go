package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chatwire/internal/storage"
)

// NewHistoryCmd creates the history command group.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect conversation history",
		Long: `Show conversation transcripts.

By default history comes from the backend; --local reads the cached
transcripts instead, which also works offline.`,
	}

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryClearCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "show <assistant-id>",
		Short: "Show a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			id := args[0]

			if local {
				db, err := cliCtx.GetStorage()
				if err != nil {
					return err
				}
				if db == nil {
					return errors.New("local storage is disabled")
				}

				msgs, err := db.ListMessages(id)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					printTranscriptLine(string(m.Role), m.Content)
				}
				return nil
			}

			msgs, err := cliCtx.APIClient().History(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				printTranscriptLine(m.Role, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "read the local transcript cache")

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locally cached conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("local storage is disabled")
			}

			conversations, err := db.Conversations()
			if err != nil {
				return err
			}
			if len(conversations) == 0 {
				fmt.Println("No cached conversations.")
				return nil
			}
			for _, c := range conversations {
				fmt.Printf("%-24s  %3d messages  %s\n", c.ID, c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <assistant-id>",
		Short: "Delete a cached transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			id := args[0]

			db, err := cliCtx.GetStorage()
			if err != nil {
				return err
			}
			if db == nil {
				return errors.New("local storage is disabled")
			}

			if err := db.DeleteConversation(id); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("no cached transcript for %s", id)
				}
				return err
			}

			fmt.Printf("Cleared %s\n", id)
			return nil
		},
	}
}

func printTranscriptLine(role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	fmt.Printf("[%s]\n%s\n\n", role, content)
}
