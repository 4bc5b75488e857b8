// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the dashchat command line surface: the interactive
// REPL for terminals where the full-screen TUI is unwanted or unavailable,
// plus terminal capability detection shared by both front ends.
package cli
