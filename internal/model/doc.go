// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for dashboard chat
// conversations: messages, citation sources, and the ordered transcript
// that a single dashboard's assistant session accumulates.
package model
