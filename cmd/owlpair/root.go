package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for owlpair.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owlpair",
		Short: "Solve tasks with an instructor/solver pair of language-model agents",
		Long: `owlpair solves a task with two cooperating agents talking to an
OpenAI-compatible chat API. The instructor breaks the task into steps and the
solver carries them out, reading web pages (text and image captions) through
a crawl-and-extract tool. The dialogue ends when either side declares the
task done or the round limit is reached.

The API key is read from --api-key, OWLPAIR_API_KEY or OPENAI_API_KEY.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorColor("Error: ")+err.Error())
		os.Exit(1)
	}
}
