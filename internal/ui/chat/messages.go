// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"
)

// =============================================================================
// PANEL MESSAGES
// =============================================================================

// ControllerChangedMsg signals that the controller's state changed: a token
// arrived, a turn settled, or the session was reset. The panel wires the
// controller's notify hook to send this through the running program.
type ControllerChangedMsg struct{}

// StreamTickMsg drives throttled re-renders while a response is streaming.
type StreamTickMsg struct {
	Time time.Time
}
