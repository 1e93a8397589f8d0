// Package main provides the CLI entry point for Shrimp, a single-user
// local computer-use assistant: an LLM tool-calling loop over a persistent
// shell, file, and memory toolset, reachable over HTTP/SSE, Telegram, and
// WhatsApp, plus one-shot trigger runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "shrimp",
		Short: "A single-user local computer-use assistant",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file ($include-aware YAML/JSON)")

	cmd.AddCommand(buildServeCmd(&configPath))
	cmd.AddCommand(buildTriggerCmd(&configPath))

	return cmd
}
