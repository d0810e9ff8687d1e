package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// NewUploadCmd creates the upload command.
func NewUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file for later attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			path := args[0]

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer f.Close()

			up, err := cliCtx.APIClient().UploadFile(cmd.Context(), filepath.Base(path), f)
			if err != nil {
				return fmt.Errorf("upload %s: %w", path, err)
			}

			fmt.Printf("Uploaded %s\n", up.Name)
			fmt.Printf("  File ID: %s\n", up.FileID)
			if up.URL != "" {
				fmt.Printf("  URL:     %s\n", up.URL)
			}
			return nil
		},
	}
}
