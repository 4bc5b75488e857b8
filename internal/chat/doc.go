// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the conversation state for dashboard assistant sessions.
//
// A Controller is the single owner of one dashboard's transcript. It drives
// the streaming transport, grows the in-progress assistant message as tokens
// arrive, and exposes the snapshot state (messages, pending flag, error,
// citation sources, panel visibility) that a host UI renders from. Sends are
// single-flight: while a request is pending, further sends are dropped, not
// queued.
package chat
