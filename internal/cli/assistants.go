package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewAssistantsCmd creates the assistants command group.
func NewAssistantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistants",
		Short: "Browse available assistants",
	}

	cmd.AddCommand(newAssistantsListCmd())
	cmd.AddCommand(newAssistantsShowCmd())

	return cmd
}

func newAssistantsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assistants",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			assistants, err := cliCtx.APIClient().ListAssistants(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(assistants, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			if len(assistants) == 0 {
				fmt.Println("No assistants available.")
				return nil
			}
			for _, a := range assistants {
				fmt.Printf("%-24s  %s\n", a.ID, a.Name)
				if a.Description != "" {
					fmt.Printf("%-24s  %s\n", "", a.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func newAssistantsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one assistant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)

			a, err := cliCtx.APIClient().GetAssistant(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("ID:          %s\n", a.ID)
			fmt.Printf("Name:        %s\n", a.Name)
			if a.Model != "" {
				fmt.Printf("Model:       %s\n", a.Model)
			}
			if a.Description != "" {
				fmt.Printf("Description: %s\n", a.Description)
			}
			return nil
		},
	}
}
