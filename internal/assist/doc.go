// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assist implements the client side of the dashboard assistant
// streaming protocol.
//
// The server answers POST /dashboards/{id}/chat with a text/event-stream
// body: blank-line-delimited records whose "data:" payload is a JSON object
// tagged by a "type" discriminator (token, done, error). This package
// contains the frame decoder that reassembles those records from arbitrarily
// fragmented reads, and the transport that drives it and reports results
// through callbacks.
//
// Cancellation is cooperative through the request context and is never
// reported as an error: an aborted stream produces no callback at all.
package assist
