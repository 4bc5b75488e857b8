// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages for the chat panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ControllerChangedMsg:
		return m.handleControllerChanged()

	case StreamTickMsg:
		return m.handleStreamTick()

	case spinner.TickMsg:
		if !m.ctrl.IsPending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleResize recomputes component dimensions.
// Layout: header (2 lines) + viewport + input (2 lines) + status (1 line).
func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	const chromeHeight = 5
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight
	m.input.Width = msg.Width - 4

	m.refreshTranscript()
	return m
}

// handleKey dispatches keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keyMap.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keyMap.Submit):
		return m.submitInput()

	case key.Matches(msg, m.keyMap.Cancel):
		if m.ctrl.IsPending() {
			m.ctrl.CancelStream()
			return m, nil
		}
		m.input.SetValue("")
		return m, nil

	case key.Matches(msg, m.keyMap.Sources):
		m.showSources = !m.showSources
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, m.keyMap.NewChat):
		m.ctrl.Reset()
		m.gate.Reset()
		m.input.SetValue("")
		m.refreshTranscript()
		return m, nil

	case key.Matches(msg, m.keyMap.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keyMap.Down):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keyMap.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keyMap.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submitInput sends the typed message. The controller treats empty text and
// sends-while-pending as silent no-ops, so the panel does not pre-filter.
func (m Model) submitInput() (Model, tea.Cmd) {
	text := m.input.Value()
	before := m.ctrl.MessageCount()
	m.ctrl.SendMessage(text)

	// Transcript growth means the send was accepted, even if the turn
	// settled before we looked.
	if m.ctrl.MessageCount() > before {
		m.input.SetValue("")
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, tea.Batch(m.spinner.Tick, streamTickCmd())
	}
	return m, nil
}

// handleControllerChanged marks a pending render. Settled turns render
// immediately; streaming turns wait for the throttled tick.
func (m Model) handleControllerChanged() (Model, tea.Cmd) {
	m.gate.Mark()

	if !m.ctrl.IsPending() {
		m.gate.ForceRender()
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil
	}
	return m, nil
}

// handleStreamTick repaints at the gated rate while streaming.
func (m Model) handleStreamTick() (Model, tea.Cmd) {
	if m.gate.TakeRender() {
		m.refreshTranscript()
		m.viewport.GotoBottom()
	}
	if m.ctrl.IsPending() {
		return m, streamTickCmd()
	}
	return m, nil
}

// refreshTranscript rebuilds the viewport content from the current snapshot.
func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
}
