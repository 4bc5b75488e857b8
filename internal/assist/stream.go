// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/morganforge/dashchat/internal/model"
)

// MaxEventSize is the maximum allowed size for a single streamed event (64KB).
const MaxEventSize = 64 * 1024

// =============================================================================
// STREAM EVENT TYPES
// =============================================================================

// Event type discriminators used on the wire.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one decoded record from the assistant stream. It is
// transient: the orchestrator consumes it and never stores it.
type StreamEvent struct {
	Type    string         `json:"type"`
	Data    string         `json:"data,omitempty"`    // token: text fragment
	Sources []model.Source `json:"sources,omitempty"` // done: citations, may be absent
	Err     string         `json:"error,omitempty"`   // error: human-readable message
}

// StreamCallbacks receives the decoded stream. OnToken may fire zero or more
// times, strictly before the single terminal callback (OnDone or OnError).
// A cancelled stream fires neither terminal callback.
type StreamCallbacks struct {
	OnToken func(text string)
	OnDone  func(sources []model.Source)
	OnError func(msg string)
}

func (cb StreamCallbacks) token(text string) {
	if cb.OnToken != nil {
		cb.OnToken(text)
	}
}

func (cb StreamCallbacks) done(sources []model.Source) {
	if cb.OnDone != nil {
		cb.OnDone(sources)
	}
}

func (cb StreamCallbacks) fail(msg string) {
	if cb.OnError != nil {
		cb.OnError(msg)
	}
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses server-sent event records from a byte stream.
//
// The underlying bufio.Reader buffers partial lines, so records split at any
// byte offset between network reads (including mid-delimiter or mid-rune)
// reassemble identically to the unsplit stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next event record from the stream.
//
// An event ends at a blank line. Within an event only "data:" lines carry
// payload and "event:" lines set the type; comments and any other fields are
// skipped, not errors. Multiple data lines are joined with a newline per the
// SSE framing rules. Returns io.EOF when the stream ends; data pending at
// EOF is delivered as a final event first.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates the record.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimPrefix(line, []byte("data:"))
			data = bytes.TrimPrefix(data, []byte(" "))
			size += len(data)
			if size > MaxEventSize {
				return "", nil, ErrEventTooLarge
			}
			dataLines = append(dataLines, data)
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :).
	}
}

// =============================================================================
// EVENT DECODING
// =============================================================================

// DecodeEvent parses a record payload into a StreamEvent.
//
// Returns ok=false for payloads that should be skipped without aborting the
// stream: empty payloads, malformed JSON, and unrecognized type tags.
func DecodeEvent(data []byte) (StreamEvent, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return StreamEvent{}, false
	}

	var ev StreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return StreamEvent{}, false
	}

	switch ev.Type {
	case EventToken, EventDone, EventError:
		return ev, true
	default:
		return StreamEvent{}, false
	}
}
