// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive REPL for conversing with a dashboard.
//
// Handles the "dashchat repl" command, a plain readline-style loop for
// terminals where the full-screen TUI is unwanted (ssh sessions, scripts
// wrapping expect, accessibility tooling).
//
// Interactive commands (during chat):
//   /help, /h      Show available commands
//   /reset, /r     Clear the conversation
//   /sources, /s   Show sources for the last answer
//   /quit, /q      Exit
//   Ctrl+C         Cancel current response
//   Ctrl+D         Exit

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/morganforge/dashchat/internal/chat"
	"github.com/morganforge/dashchat/internal/config"
	"github.com/morganforge/dashchat/internal/model"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// replInput provides input history and line editing for the REPL.
type replInput struct {
	line        *liner.State
	historyFile string
}

func newReplInput() *replInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.Dir()
	if err != nil {
		dir = os.TempDir()
	}

	in := &replInput{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	in.loadHistory()
	return in
}

func (in *replInput) loadHistory() {
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
}

// readInput reads a line with history navigation.
func (in *replInput) readInput(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

func (in *replInput) saveHistory() {
	dir := filepath.Dir(in.historyFile)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	in.line.WriteHistory(f)
}

func (in *replInput) close() {
	in.saveHistory()
	in.line.Close()
}

// =============================================================================
// REPL SESSION
// =============================================================================

// ReplSession holds the state for one interactive REPL run.
type ReplSession struct {
	ctrl     *chat.Controller
	cfg      *config.Config
	markdown *glamour.TermRenderer
	input    *replInput
	started  time.Time
	turns    int
}

// NewReplSession creates a session over an existing controller.
func NewReplSession(ctrl *chat.Controller, cfg *config.Config) *ReplSession {
	s := &ReplSession{
		ctrl:    ctrl,
		cfg:     cfg,
		input:   newReplInput(),
		started: time.Now(),
	}

	// Markdown only makes sense on a real terminal.
	if cfg.UI.Markdown && IsStdoutTTY() {
		width := cfg.UI.WordWrap
		if width <= 0 || width > TerminalWidth() {
			width = TerminalWidth()
		}
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			s.markdown = renderer
		}
	}

	return s
}

// RunRepl runs the interactive loop until the user exits.
func RunRepl(ctrl *chat.Controller, cfg *config.Config) error {
	session := NewReplSession(ctrl, cfg)
	defer session.input.close()

	session.printWelcome()

	// Ctrl+C during a streaming response cancels it. At the prompt, liner
	// turns Ctrl+C into ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.ctrl.IsPending() {
				session.ctrl.CancelStream()
			}
		}
	}()

	for {
		input, err := session.input.readInput(promptStyle.Render("dashchat> "))
		if err != nil {
			// ErrPromptAborted (Ctrl+C) and EOF (Ctrl+D) both exit.
			fmt.Println()
			session.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont := session.handleSlashCommand(input)
			if !cont {
				session.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			session.printExitSummary()
			return nil
		}

		session.processMessage(input)
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends one turn and prints the response as it streams.
func (s *ReplSession) processMessage(input string) {
	before := s.ctrl.MessageCount()
	done := s.ctrl.SendMessage(input)
	if s.ctrl.MessageCount() == before {
		// Rejected send (empty input or a turn already in flight).
		return
	}
	s.turns++

	fmt.Println()

	// With markdown the answer renders once on completion; without it,
	// tokens print as they arrive.
	if s.markdown == nil {
		s.streamPlain(done)
	} else {
		<-done
	}

	switch s.ctrl.State() {
	case chat.StateDone:
		if s.markdown != nil {
			s.printMarkdownAnswer()
		}
		fmt.Println()
		if s.cfg.UI.ShowSources {
			s.printSources()
		}
	case chat.StateErrored:
		fmt.Fprintf(os.Stderr, "\n%s %s\n",
			errorStyle.Render("[Error]"), s.ctrl.Err())
	case chat.StateAborted:
		if s.markdown == nil {
			fmt.Println()
		}
		fmt.Fprintln(os.Stderr, warningStyle.Render("[Cancelled]"))
	}
	fmt.Println()
}

// streamPlain prints response tokens incrementally until the turn settles.
func (s *ReplSession) streamPlain(done <-chan struct{}) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	printed := 0
	flush := func() {
		content := s.lastAssistantContent()
		if len(content) > printed {
			fmt.Print(content[printed:])
			printed = len(content)
		}
	}

	for {
		select {
		case <-ticker.C:
			flush()
		case <-done:
			flush()
			return
		}
	}
}

// lastAssistantContent returns the assistant content of the current turn.
func (s *ReplSession) lastAssistantContent() string {
	transcript := s.ctrl.Transcript()
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == model.RoleAssistant {
			return transcript[i].Content
		}
	}
	return ""
}

// printMarkdownAnswer renders the finished answer through glamour.
func (s *ReplSession) printMarkdownAnswer() {
	content := s.lastAssistantContent()
	out, err := s.markdown.Render(content)
	if err != nil {
		fmt.Println(content)
		return
	}
	fmt.Print(out)
}

// printSources lists citations for the last completed answer.
func (s *ReplSession) printSources() {
	sources := s.ctrl.Sources()
	if len(sources) == 0 {
		return
	}
	fmt.Println(sourceHeaderStyle.Render(fmt.Sprintf("Sources (%d)", len(sources))))
	for _, src := range sources {
		if src.Relevance != "" {
			fmt.Printf("  %s %s\n", sourceNameStyle.Render(src.DatasetName),
				infoStyle.Render("("+src.Relevance+")"))
		} else {
			fmt.Printf("  %s\n", sourceNameStyle.Render(src.DatasetName))
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes a /command. Returns false to exit the REPL.
func (s *ReplSession) handleSlashCommand(input string) bool {
	cmd := strings.ToLower(strings.Fields(input)[0])

	switch cmd {
	case "/help", "/h":
		s.printHelp()
	case "/reset", "/r", "/clear", "/c":
		s.ctrl.Reset()
		fmt.Println(infoStyle.Render("Conversation cleared."))
	case "/sources", "/s":
		if len(s.ctrl.Sources()) == 0 {
			fmt.Println(infoStyle.Render("No sources for the last answer."))
		} else {
			s.printSources()
		}
	case "/quit", "/q", "/exit":
		return false
	default:
		fmt.Fprintf(os.Stderr, "%s unknown command %s (try /help)\n",
			errorStyle.Render("[Error]"), cmd)
	}
	return true
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func (s *ReplSession) printWelcome() {
	fmt.Println(welcomeStyle.Render("dashchat"))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Dashboard:"),
		s.ctrl.DashboardID())
	fmt.Printf("%s %s, %s, %s, %s\n",
		infoStyle.Render("Commands:"),
		commandStyle.Render("/help"),
		commandStyle.Render("/reset"),
		commandStyle.Render("/sources"),
		commandStyle.Render("/quit"))
	fmt.Println()
}

func (s *ReplSession) printHelp() {
	help := [][2]string{
		{"/help, /h", "Show this help"},
		{"/reset, /r", "Clear the conversation"},
		{"/sources, /s", "Show sources for the last answer"},
		{"/quit, /q", "Exit"},
		{"Ctrl+C", "Cancel current response"},
		{"Ctrl+D", "Exit"},
	}
	for _, h := range help {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-14s", h[0])),
			infoStyle.Render(h[1]))
	}
}

func (s *ReplSession) printExitSummary() {
	if s.turns == 0 {
		return
	}
	fmt.Printf("%s %d turns in %s\n",
		infoStyle.Render("Session:"),
		s.turns,
		time.Since(s.started).Round(time.Second))
}
