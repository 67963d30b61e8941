// Copyright 2024-2026 Aiku AI

// Command threadtag runs threaded discussions with @-mentions. Mentioned
// people are resolved against a directory and notified by e-mail,
// Mattermost or Matrix.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "threadtag",
		Short:         "Threaded posts and replies with @-mention notifications",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Tag, Commit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			_ = godotenv.Load(".env")
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (defaults apply when empty)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(postCmd())
	rootCmd.AddCommand(replyCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(mentionsCmd())
	rootCmd.AddCommand(exampleConfigCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
