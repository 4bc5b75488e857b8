// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Lip Gloss styles for the dashchat REPL.

package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/dashchat/internal/ui/styles"
)

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Indigo).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)

	// Source citation styles
	sourceHeaderStyle = lipgloss.NewStyle().
				Foreground(styles.TextSecondary).
				Bold(true)

	sourceNameStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan)
)
