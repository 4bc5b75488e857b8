// args.go - Argument parsing for the dashchat CLI.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies which top-level handler runs.
type Command int

const (
	CmdTUI     Command = iota // Default: full-screen chat panel
	CmdRepl                   // Plain readline loop
	CmdConfig                 // Print effective configuration
	CmdVersion                // Print version
	CmdHelp                   // Print usage
)

// Args holds parsed command line options.
type Args struct {
	Dashboard  string // --dashboard / -d
	ServerURL  string // --server
	ConfigPath string // --config
	NoMarkdown bool   // --no-markdown
}

// Parse reads os.Args-style arguments into a command and its options.
func Parse(raw []string) (Command, Args) {
	p := newArgParser(raw)

	args := Args{
		Dashboard:  p.flagOr("dashboard", p.flag("d")),
		ServerURL:  p.flag("server"),
		ConfigPath: p.flag("config"),
		NoMarkdown: p.boolFlag("no-markdown"),
	}

	switch p.subcommand() {
	case "", "tui":
		if p.boolFlag("help") || p.boolFlag("h") {
			return CmdHelp, args
		}
		if p.boolFlag("version") || p.boolFlag("v") {
			return CmdVersion, args
		}
		return CmdTUI, args
	case "repl", "chat":
		return CmdRepl, args
	case "config":
		return CmdConfig, args
	case "version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		return CmdHelp, args
	}
}

// =============================================================================
// ARG PARSER
// =============================================================================

// argParser handles flags in multiple formats consistently:
// --flag value, --flag=value, -f value, and bare boolean flags.
// The first positional argument is the subcommand.
type argParser struct {
	sub        string
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

func newArgParser(raw []string) *argParser {
	p := &argParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}

	i := 0
	for i < len(raw) {
		arg := raw[i]

		if !strings.HasPrefix(arg, "-") {
			p.positional = append(p.positional, arg)
			i++
			continue
		}

		if name, value, ok := strings.Cut(arg, "="); ok {
			name = strings.TrimLeft(name, "-")
			if value == "true" || value == "false" {
				p.boolFlags[name] = value == "true"
			} else {
				p.flags[name] = value
			}
			i++
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i += 2
		} else {
			p.boolFlags[name] = true
			i++
		}
	}

	if len(p.positional) > 0 {
		p.sub = p.positional[0]
	}
	return p
}

func (p *argParser) subcommand() string {
	return p.sub
}

func (p *argParser) flag(name string) string {
	return p.flags[strings.TrimLeft(name, "-")]
}

func (p *argParser) flagOr(name, fallback string) string {
	if v := p.flag(name); v != "" {
		return v
	}
	return fallback
}

func (p *argParser) boolFlag(name string) bool {
	return p.boolFlags[strings.TrimLeft(name, "-")]
}
