// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func (f *globalFlags) open(cmd *cobra.Command, quiet bool) (*App, error) {
	app, err := OpenApp(cmd.Context(), AppOptions{
		ConfigPath: f.configPath,
		LogLevel:   f.logLevel,
		Quiet:      quiet,
	})
	if err != nil {
		return nil, err
	}
	if app.Config.UI.NoColor {
		ForceColorsEnabled(false)
	}
	applyColorProfile()
	return app, nil
}

// NewRootCommand builds the chatdesk command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "chatdesk",
		Short: "Multi-chat assistant with a to-do chat, backed by Groq",
		Long: `chatdesk keeps several chat conversations and a to-do list.

Messages in a regular chat are answered by a Groq-hosted model. Messages in
the To-Do Chat become todo items instead.

Run without arguments to start the interactive chat.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default: ~/.chatdesk/config.toml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newChatCommand(flags),
		newServeCommand(flags),
		newSendCommand(flags),
		newChatsCommand(flags),
		newTodosCommand(flags),
		newConfigCommand(flags),
		newExportCommand(flags),
		newResetCommand(flags),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command with SIGINT/SIGTERM cancelling the context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatdesk %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
		},
	}
}
