// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/dashchat/internal/chat"
	"github.com/morganforge/dashchat/internal/model"
)

// =============================================================================
// MAIN RENDER
// =============================================================================

// View renders the complete chat panel.
// Layout: header + transcript viewport + input + status bar.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// =============================================================================
// COMPONENTS
// =============================================================================

// renderHeader renders the dashboard title line.
func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("Dashboard Chat")
	subtitle := m.theme.HeaderSubtitle.Render(" · " + m.ctrl.DashboardID())
	return m.theme.Header.Width(m.width).Render(title + subtitle)
}

// renderInput renders the input area, replaced by a spinner line while a
// response streams in.
func (m Model) renderInput() string {
	if m.ctrl.IsPending() {
		thinking := m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking... press Esc to stop")
		return m.theme.InputContainer.Width(m.width).Render(thinking)
	}
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

// renderStatusBar renders shortcut hints.
func (m Model) renderStatusBar() string {
	var parts []string
	for _, b := range m.keyMap.ShortHelp() {
		h := b.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDesc.Render(h.Desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders the message history plus any turn status lines.
func (m Model) renderTranscript() string {
	msgs := m.ctrl.Transcript()
	if len(msgs) == 0 {
		return m.theme.ThinkingText.Render("\n  Ask a question about this dashboard's data.\n")
	}

	var b strings.Builder
	for _, msg := range msgs {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	switch m.ctrl.State() {
	case chat.StateErrored:
		b.WriteString(m.renderError(m.ctrl.Err()))
		b.WriteString("\n")
	case chat.StateAborted:
		b.WriteString(m.theme.Cancelled.Render("Response stopped."))
		b.WriteString("\n")
	case chat.StateDone:
		if m.showSources {
			if sources := m.ctrl.Sources(); len(sources) > 0 {
				b.WriteString(m.renderSources(sources))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// renderMessage renders one transcript entry with its role label.
func (m Model) renderMessage(msg chat.MessageView) string {
	label := m.theme.RoleLabel.Render(msg.Role.DisplayName())

	content := msg.Content
	if msg.Role == model.RoleAssistant {
		if content == "" && msg.Streaming {
			content = m.spinner.View()
		} else if !msg.Streaming {
			content = m.renderMarkdown(content)
		}
		return label + "\n" + m.theme.AssistantBubble.Width(m.width-2).Render(content)
	}
	return label + "\n" + m.theme.UserBubble.Width(m.width-2).Render(content)
}

// renderMarkdown renders a finalized answer through glamour, falling back to
// plain text when markdown is disabled or rendering fails.
func (m Model) renderMarkdown(content string) string {
	if m.markdown == nil {
		return content
	}
	out, err := m.markdown.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// renderError renders a failed turn's message.
func (m Model) renderError(errMsg string) string {
	title := m.theme.ErrorTitle.Render("Something went wrong")
	return m.theme.ErrorBox.Width(m.width - 2).Render(title + "\n" + errMsg)
}

// renderSources renders the citations under a completed answer.
func (m Model) renderSources(sources []model.Source) string {
	var b strings.Builder
	b.WriteString(m.theme.SourceHeader.Render(fmt.Sprintf("Sources (%d)", len(sources))))
	for _, s := range sources {
		b.WriteString("\n  ")
		b.WriteString(m.theme.SourceDataset.Render(s.DatasetName))
		if s.Relevance != "" {
			b.WriteString(m.theme.SourceRelevance.Render(": " + s.Relevance))
		}
	}
	return b.String()
}
