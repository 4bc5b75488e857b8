// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the Bubble Tea chat panel for a dashboard.
//
// The panel is a thin view over chat.Controller: it submits user input,
// renders transcript snapshots, and throttles re-renders while tokens
// stream in so the terminal stays flicker-free. All conversation state
// lives in the controller; the panel never mutates it directly.
package chat
