package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"chatwire/internal/tui"
)

// NewTuiCmd creates the tui command.
func NewTuiCmd() *cobra.Command {
	var assistantID string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive chat screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if assistantID == "" {
				return fmt.Errorf("--assistant is required")
			}

			cliCtx := GetCLIContext(cmd)
			return tui.Run(cmd.Context(), cliCtx.Coordinator(), assistantID)
		},
	}

	cmd.Flags().StringVarP(&assistantID, "assistant", "a", "", "assistant id to chat with")

	return cmd
}
