// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/export"
	"github.com/jeranaias/chatdesk/internal/model"
	"github.com/jeranaias/chatdesk/internal/server"
	"github.com/jeranaias/chatdesk/internal/util"
)

// =============================================================================
// CHAT
// =============================================================================

func newChatCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	}
}

func runChat(cmd *cobra.Command, flags *globalFlags) error {
	if !IsTTY() {
		return errors.New("stdin is not a terminal; use 'chatdesk send' for scripted messages")
	}

	app, err := flags.open(cmd, true)
	if err != nil {
		return err
	}
	defer app.Close()

	input := NewHistoryInput()
	defer input.Close()

	out := NewRenderer(cmd.OutOrStdout(), app.Config.UI.Markdown, app.Config.UI.WordWrap)
	return NewREPL(app, out, input).Run(cmd.Context())
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCommand(flags *globalFlags) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the chat, todo, and completion API.

The config file is watched; a changed gateway.api_key takes effect without a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.open(cmd, false)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := server.OptionsFromConfig(app.Config.Server)
			if host != "" {
				opts.Host = host
			}
			if port != 0 {
				opts.Port = port
			}
			if err := app.Config.RequireAPIKey(); err != nil {
				app.Logger.Warn(err.Error())
			}

			srv := server.New(opts, app.Store, app.Workflow, app.Client, app.Logger)
			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return srv.Run(ctx)
			})

			if app.ConfigPath != "" {
				g.Go(func() error {
					return config.Watch(ctx, app.ConfigPath, func(cfg *config.Config, err error) {
						if err != nil {
							app.Logger.Warn("config reload failed", zap.Error(err))
							return
						}
						app.Client.SetAPIKey(cfg.Gateway.APIKey)
						app.Logger.Info("config reloaded",
							zap.String("path", app.ConfigPath),
							zap.Bool("gateway_configured", app.Client.IsConfigured()))
					})
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "chatdesk API listening on http://%s\n", srv.Addr())
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides server.port)")
	return cmd
}

// =============================================================================
// SEND
// =============================================================================

func newSendCommand(flags *globalFlags) *cobra.Command {
	var chatRef string

	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send one message and print the reply",
		Long: `Sends to the chat given by --chat, or to the first chat when omitted.
The active selection is not persisted between runs.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.open(cmd, true)
			if err != nil {
				return err
			}
			defer app.Close()

			if chatRef != "" {
				c, err := selectChat(app.Store.SortedChats(), chatRef)
				if err != nil {
					return err
				}
				app.Store.SetActiveChat(c.ID)
			}

			out := NewRenderer(cmd.OutOrStdout(), app.Config.UI.Markdown, app.Config.UI.WordWrap)
			res := app.Workflow.Send(cmd.Context(), strings.Join(args, " "))
			if res.Skipped {
				return errors.New("nothing sent: no active chat or empty message")
			}
			out.Message(res.Reply)
			if res.Err != nil {
				return fmt.Errorf("send failed: %w", res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&chatRef, "chat", "", "Chat number or id (default: first chat)")
	return cmd
}

// =============================================================================
// CHATS
// =============================================================================

func newChatsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List and manage chats",
		Args:  cobra.NoArgs,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List chats, most recently visited first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(app *App, out *Renderer) error {
				out.ChatList(app.Store.SortedChats(), app.Store.ActiveChatID())
				return nil
			})
		},
	}
	cmd.RunE = list.RunE

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "new",
			Short: "Create a chat and make it active",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					c := app.Store.CreateChat()
					out.Success("Created %q (%s)", c.Name, c.ID)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "rename <n|id> <name>",
			Short: "Rename a chat",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					c, err := selectChat(app.Store.SortedChats(), args[0])
					if err != nil {
						return err
					}
					name := strings.Join(args[1:], " ")
					if err := app.Store.RenameChat(c.ID, name); err != nil {
						return err
					}
					out.Success("Renamed %q to %q", c.Name, strings.TrimSpace(name))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete <n|id>",
			Aliases: []string{"rm"},
			Short:   "Delete a chat",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					c, err := selectChat(app.Store.SortedChats(), args[0])
					if err != nil {
						return err
					}
					if err := app.Store.DeleteChat(c.ID); err != nil {
						return err
					}
					out.Success("Deleted %q", c.Name)
					return nil
				})
			},
		},
	)
	return cmd
}

// =============================================================================
// TODOS
// =============================================================================

func newTodosCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todos",
		Short: "List and manage todos",
		Args:  cobra.NoArgs,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List todos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(app *App, out *Renderer) error {
				out.TodoList(app.Store.Todos())
				return nil
			})
		},
	}
	cmd.RunE = list.RunE

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "add <text>",
			Short: "Add a todo",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					todo, err := app.Store.AddTodo(strings.Join(args, " "))
					if err != nil {
						return err
					}
					out.Success("Added %q", todo.Content)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "toggle <n|id>",
			Aliases: []string{"done"},
			Short:   "Toggle a todo's completion",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					todo, err := selectTodo(app.Store.Todos(), args[0])
					if err != nil {
						return err
					}
					app.Store.ToggleTodo(todo.ID)
					state := "open"
					if !todo.Completed {
						state = "done"
					}
					out.Success("%q is now %s", todo.Content, state)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:     "delete <n|id>",
			Aliases: []string{"rm"},
			Short:   "Delete a todo",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, flags, func(app *App, out *Renderer) error {
					todo, err := selectTodo(app.Store.Todos(), args[0])
					if err != nil {
						return err
					}
					app.Store.DeleteTodo(todo.ID)
					out.Success("Deleted %q", todo.Content)
					return nil
				})
			},
		},
	)
	return cmd
}

// =============================================================================
// EXPORT
// =============================================================================

func newExportCommand(flags *globalFlags) *cobra.Command {
	var (
		format string
		outDir string
		todos  bool
	)

	cmd := &cobra.Command{
		Use:   "export [n|id]",
		Short: "Export a chat (default: first chat) or the todo list to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(app *App, out *Renderer) error {
				if todos {
					path := filepath.Join(outDir, "todos.md")
					if err := os.MkdirAll(outDir, 0700); err != nil {
						return err
					}
					if err := util.AtomicWriteFile(path, export.TodoChecklist(app.Store.Todos()), 0600); err != nil {
						return fmt.Errorf("write todos: %w", err)
					}
					out.Success("Wrote %s", path)
					return nil
				}

				c, ok := app.Store.ActiveChat()
				if len(args) == 1 {
					var err error
					if c, err = selectChat(app.Store.SortedChats(), args[0]); err != nil {
						return err
					}
				} else if !ok {
					return errors.New("no chat to export")
				}

				path, err := exportChat(c, format, outDir)
				if err != nil {
					return err
				}
				out.Success("Wrote %s", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", export.FormatMarkdown, "Output format: markdown or json")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Output directory")
	cmd.Flags().BoolVar(&todos, "todos", false, "Export the todo list as a Markdown checklist")
	return cmd
}

// exportChat writes one chat in format under dir.
func exportChat(c model.Chat, format, dir string) (string, error) {
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	return export.ToFile(c, exp, opts)
}

// =============================================================================
// RESET
// =============================================================================

func newResetCommand(flags *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all saved chats and todos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to delete saved chats and todos without --yes")
			}
			return withApp(cmd, flags, func(app *App, out *Renderer) error {
				if err := app.Reset(cmd.Context()); err != nil {
					return err
				}
				out.Success("Cleared saved chats and todos")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

// withApp opens an App for a one-shot command and closes it afterwards.
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(app *App, out *Renderer) error) error {
	app, err := flags.open(cmd, true)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app, NewRenderer(cmd.OutOrStdout(), false, 0))
}

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the config file",
		Args:  cobra.NoArgs,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				dir, err := config.ConfigDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, "config.toml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			if path := resolveConfigPath(flags.configPath); path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "# no config file; using defaults")
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
