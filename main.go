// dashchat - Conversational assistant for BI dashboards, in the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/morganforge/dashchat/internal/assist"
	"github.com/morganforge/dashchat/internal/chat"
	"github.com/morganforge/dashchat/internal/cli"
	"github.com/morganforge/dashchat/internal/config"
	uichat "github.com/morganforge/dashchat/internal/ui/chat"
	"github.com/morganforge/dashchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdTUI:
		run(args, runTUI)
	case cli.CmdRepl:
		run(args, runRepl)
	case cli.CmdConfig:
		if err := printConfig(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdVersion:
		printVersion()
	case cli.CmdHelp:
		printUsage()
	}
}

// run loads configuration, wires the session stack, and hands the controller
// to the chosen front end.
func run(args cli.Args, front func(*chat.Controller, *config.Config) error) {
	cfg, holder, err := loadConfig(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer holder.Close()

	if cfg.DashboardID == "" {
		fmt.Fprintln(os.Stderr, "Error: no dashboard selected (use --dashboard, DASHCHAT_DASHBOARD, or dashboard_id in config)")
		os.Exit(1)
	}

	client := assist.NewClient(cfg.ServerURL).WithTokenSource(holder)
	if cfg.RequestsPerMinute > 0 {
		client = client.WithLimiter(rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1))
	}

	registry := chat.NewRegistry(client)
	ctrl := registry.For(cfg.DashboardID)

	if err := front(ctrl, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from file, environment, and flags.
func loadConfig(args cli.Args) (*config.Config, *config.TokenHolder, error) {
	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFrom(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	// Flags beat file and environment.
	if args.ServerURL != "" {
		cfg.ServerURL = args.ServerURL
	}
	if args.Dashboard != "" {
		cfg.DashboardID = args.Dashboard
	}
	if args.NoMarkdown {
		cfg.UI.Markdown = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	holder, err := config.NewTokenHolder(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, holder, nil
}

// =============================================================================
// FRONT ENDS
// =============================================================================

// app adapts the chat panel to the tea.Model interface.
type app struct {
	panel uichat.Model
}

func (a app) Init() tea.Cmd {
	return a.panel.Init()
}

func (a app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	a.panel, cmd = a.panel.Update(msg)
	return a, cmd
}

func (a app) View() string {
	return a.panel.View()
}

// runTUI starts the full-screen chat panel.
func runTUI(ctrl *chat.Controller, cfg *config.Config) error {
	theme := styles.NewTheme()
	panel := uichat.New(theme, ctrl, cfg.UI)
	ctrl.TogglePanel()

	p := tea.NewProgram(app{panel: panel}, tea.WithAltScreen())

	// Stream callbacks arrive off the Bubble Tea loop; the notify hook
	// forwards them as messages.
	ctrl.SetNotify(func() {
		p.Send(uichat.ControllerChangedMsg{})
	})

	_, err := p.Run()
	return err
}

// runRepl starts the plain readline loop.
func runRepl(ctrl *chat.Controller, cfg *config.Config) error {
	return cli.RunRepl(ctrl, cfg)
}

// =============================================================================
// SIMPLE COMMANDS
// =============================================================================

// printConfig shows the effective configuration with the credential redacted.
func printConfig(args cli.Args) error {
	cfg, holder, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer holder.Close()

	fmt.Printf("server_url           %s\n", cfg.ServerURL)
	fmt.Printf("dashboard_id         %s\n", orUnset(cfg.DashboardID))
	fmt.Printf("token                %s\n", redact(holder.Token()))
	fmt.Printf("token_file           %s\n", orUnset(cfg.TokenFile))
	fmt.Printf("requests_per_minute  %d\n", cfg.RequestsPerMinute)
	fmt.Printf("ui.markdown          %t\n", cfg.UI.Markdown)
	fmt.Printf("ui.word_wrap         %d\n", cfg.UI.WordWrap)
	fmt.Printf("ui.show_sources      %t\n", cfg.UI.ShowSources)
	return nil
}

func orUnset(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

func redact(token string) string {
	if token == "" {
		return "(unset)"
	}
	return "(set)"
}

func printVersion() {
	fmt.Printf("dashchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
}

func printUsage() {
	fmt.Print(`dashchat - chat with your BI dashboards from the terminal

Usage:
  dashchat [flags]            Start the full-screen chat panel
  dashchat repl [flags]       Start a plain readline chat loop
  dashchat config [flags]     Print the effective configuration
  dashchat version            Print version information
  dashchat help               Show this help

Flags:
  -d, --dashboard ID   Dashboard to chat with
  --server URL         Dashboard server base URL
  --config PATH        Config file (default ~/.dashchat/config.toml)
  --no-markdown        Disable markdown rendering of answers

Environment:
  DASHCHAT_SERVER_URL, DASHCHAT_DASHBOARD, DASHCHAT_TOKEN, DASHCHAT_TOKEN_FILE
`)
}
