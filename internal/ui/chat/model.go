// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/morganforge/dashchat/internal/chat"
	"github.com/morganforge/dashchat/internal/config"
	"github.com/morganforge/dashchat/internal/ui/styles"
)

// =============================================================================
// CHAT PANEL MODEL
// =============================================================================

// Model is the Bubble Tea model for a dashboard's chat panel.
type Model struct {
	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// Session state, owned by the controller
	ctrl *chat.Controller

	// Rendering options
	uiCfg       config.UIConfig
	markdown    *glamour.TermRenderer
	showSources bool

	// Render throttling during streaming
	gate *RenderGate

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	// Key bindings
	keyMap KeyMap
}

// New creates a chat panel bound to a controller.
func New(theme *styles.Theme, ctrl *chat.Controller, uiCfg config.UIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about this dashboard..."
	ti.CharLimit = 4096
	ti.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent("")

	// ASCII frames render everywhere, including dumb terminals.
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 30,
	}
	sp.Style = theme.Spinner

	m := Model{
		theme:       theme,
		ctrl:        ctrl,
		uiCfg:       uiCfg,
		showSources: uiCfg.ShowSources,
		gate:        NewRenderGate(),
		viewport:    vp,
		input:       ti,
		spinner:     sp,
		keyMap:      DefaultKeyMap(),
	}

	if uiCfg.Markdown {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(uiCfg.WordWrap),
		)
		if err == nil {
			m.markdown = renderer
		}
		// On error finalized answers fall back to plain text.
	}

	return m
}

// Controller exposes the bound controller, e.g. for wiring the notify hook.
func (m Model) Controller() *chat.Controller {
	return m.ctrl
}

// Init starts the input cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}
