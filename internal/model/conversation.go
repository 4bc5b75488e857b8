// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// MaxMessages is the maximum number of messages to keep in conversation
// history. When exceeded, the oldest messages are pruned to prevent
// unbounded memory growth in long-lived dashboard sessions.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered transcript of one dashboard's chat session.
// Messages are append-only within a turn; the list is cleared only by an
// explicit reset.
type Conversation struct {
	// Identity
	DashboardID string    `json:"dashboard_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`
}

// NewConversation creates an empty conversation for a dashboard.
func NewConversation(dashboardID string) *Conversation {
	return &Conversation{
		DashboardID: dashboardID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Messages:    make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends a message to the conversation.
func (c *Conversation) AddMessage(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	c.pruneOldMessages()
}

// AddUserMessage creates and appends a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddAssistantMessage creates and appends an empty streaming assistant
// message, the placeholder that tokens will grow.
func (c *Conversation) AddAssistantMessage() *Message {
	msg := NewAssistantMessage()
	c.AddMessage(msg)
	return msg
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// AppendToLast appends a token to the last message if it is streaming.
func (c *Conversation) AppendToLast(token string) {
	last := c.LastMessage()
	if last != nil && last.IsStreaming {
		last.AppendToken(token)
	}
}

// FinalizeLast completes the last message's streaming state, freezing
// whatever content has accumulated so far.
func (c *Conversation) FinalizeLast() {
	last := c.LastMessage()
	if last != nil && last.IsStreaming {
		last.FinalizeStream()
		c.UpdatedAt = time.Now()
	}
}

// Clear removes all messages from the conversation.
func (c *Conversation) Clear() {
	c.Messages = make([]*Message, 0)
	c.UpdatedAt = time.Now()
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// WIRE CONVERSION
// =============================================================================

// HistoryBefore returns the wire transcript excluding the last skip
// messages. A new turn sends HistoryBefore(2): the transcript as it stood
// before the just-added user message and the assistant placeholder.
func (c *Conversation) HistoryBefore(skip int) []ChatMessage {
	end := len(c.Messages) - skip
	if end < 0 {
		end = 0
	}
	history := make([]ChatMessage, 0, end)
	for _, msg := range c.Messages[:end] {
		history = append(history, msg.Wire())
	}
	return history
}

// WireMessages converts the full transcript to wire form.
func (c *Conversation) WireMessages() []ChatMessage {
	return c.HistoryBefore(0)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// pruneOldMessages drops the oldest messages once MaxMessages is exceeded.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}
	start := len(c.Messages) - MaxMessages
	c.Messages = append(make([]*Message, 0, MaxMessages), c.Messages[start:]...)
}
