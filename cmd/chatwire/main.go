// Command chatwire is the terminal chat client.
package main

import (
	"fmt"
	"os"

	"chatwire/internal/cli"
	"chatwire/pkg/logger"
)

func main() {
	rootCmd := cli.NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}
