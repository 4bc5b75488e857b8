// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/morganforge/dashchat/internal/assist"
	"github.com/morganforge/dashchat/internal/model"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the lifecycle phase of the current turn:
// Idle -> Pending -> {Done, Errored, Aborted} -> Idle (next send).
type State int

const (
	StateIdle State = iota
	StatePending
	StateDone
	StateErrored
	StateAborted
)

// String returns the state name for logs and tests.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Streamer is the transport the controller drives. *assist.Client satisfies
// it; tests substitute fakes.
type Streamer interface {
	StreamChat(ctx context.Context, dashboardID string, req assist.ChatRequest, cb assist.StreamCallbacks)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the exclusive owner of one dashboard's chat session state.
//
// Stream callbacks arrive from the transport goroutine while the host UI
// reads snapshots, so all state is mutex-guarded. Callbacks carry the
// generation they were started under: Reset bumps the generation, which
// makes any late callback from a superseded stream a no-op.
type Controller struct {
	mu sync.Mutex

	// Identity
	dashboardID string
	sessionID   string

	// Owned state
	conv    *model.Conversation
	state   State
	errMsg  string
	sources []model.Source
	open    bool

	// Stream plumbing
	generation uint64
	cancelMgr  *cancelManager
	streamer   Streamer

	// Change hook for the host UI, invoked outside the lock.
	notify func()
}

// NewController creates an idle controller for one dashboard.
func NewController(dashboardID string, streamer Streamer) *Controller {
	return &Controller{
		dashboardID: dashboardID,
		sessionID:   uuid.NewString(),
		conv:        model.NewConversation(dashboardID),
		cancelMgr:   newCancelManager(),
		streamer:    streamer,
	}
}

// SetNotify registers a hook called after every state change. The hook runs
// outside the controller lock and must not call back into the controller
// synchronously from itself if it takes its own locks around controller reads.
func (c *Controller) SetNotify(fn func()) {
	c.mu.Lock()
	c.notify = fn
	c.mu.Unlock()
}

// changed invokes the notify hook, if any, outside the lock.
func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.notify
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// SendMessage starts a new turn with the given user text.
//
// Empty or whitespace-only text is a silent no-op, as is a send while a turn
// is already pending (single-flight: the second text is discarded, not
// queued). The returned channel closes when the turn reaches a terminal
// state; callers may await it or ignore it and watch the snapshot state.
func (c *Controller) SendMessage(text string) <-chan struct{} {
	done := make(chan struct{})

	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.state == StatePending {
		c.mu.Unlock()
		close(done)
		return done
	}

	// A new turn always starts clean: a previous turn's error never
	// persists silently.
	c.errMsg = ""
	c.state = StatePending

	c.conv.AddUserMessage(text)
	c.conv.AddAssistantMessage()
	// The server receives the transcript as it stood before this turn.
	history := c.conv.HistoryBefore(2)

	gen := c.generation
	streamer := c.streamer
	dashboardID := c.dashboardID

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelMgr.set(cancel)
	c.mu.Unlock()
	c.changed()

	go func() {
		defer close(done)
		defer cancel()

		req := assist.ChatRequest{
			Message:             text,
			ConversationHistory: history,
		}
		streamer.StreamChat(ctx, dashboardID, req, assist.StreamCallbacks{
			OnToken: func(t string) { c.onToken(gen, t) },
			OnDone:  func(s []model.Source) { c.onDone(gen, s) },
			OnError: func(m string) { c.onError(gen, m) },
		})

		// A cancelled stream returns with no terminal callback; settle it.
		c.settleAborted(gen)
	}()

	return done
}

// CancelStream aborts the in-flight turn, if any. The partial assistant
// content streamed so far becomes that message's final content; no error is
// recorded. Cancellation is a normal outcome, not a failure.
func (c *Controller) CancelStream() {
	c.mu.Lock()
	if c.state != StatePending {
		c.mu.Unlock()
		return
	}
	c.state = StateAborted
	c.conv.FinalizeLast()
	c.mu.Unlock()

	c.cancelMgr.cancel()
	c.changed()
}

// TogglePanel flips the chat panel visibility. Independent of stream state.
func (c *Controller) TogglePanel() {
	c.mu.Lock()
	c.open = !c.open
	c.mu.Unlock()
	c.changed()
}

// Reset returns the session to its initial empty state: transcript, sources,
// error, pending flag, and panel visibility all cleared. Any in-flight
// stream is cancelled and its late callbacks are dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.generation++
	c.state = StateIdle
	c.errMsg = ""
	c.sources = nil
	c.open = false
	c.conv.Clear()
	c.mu.Unlock()

	c.cancelMgr.cancel()
	c.changed()
}

// =============================================================================
// STREAM CALLBACKS
// =============================================================================

// live reports whether a callback from generation gen may still mutate
// state. Caller must hold the lock.
func (c *Controller) live(gen uint64) bool {
	return gen == c.generation && c.state == StatePending
}

func (c *Controller) onToken(gen uint64, token string) {
	c.mu.Lock()
	if !c.live(gen) {
		c.mu.Unlock()
		return
	}
	c.conv.AppendToLast(token)
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) onDone(gen uint64, sources []model.Source) {
	c.mu.Lock()
	if !c.live(gen) {
		c.mu.Unlock()
		return
	}
	c.conv.FinalizeLast()
	c.sources = sources
	c.state = StateDone
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) onError(gen uint64, msg string) {
	c.mu.Lock()
	if !c.live(gen) {
		c.mu.Unlock()
		return
	}
	// Partial tokens stay in place; the turn just ends in error.
	c.conv.FinalizeLast()
	c.errMsg = msg
	c.state = StateErrored
	c.mu.Unlock()
	c.changed()
}

// settleAborted resolves a stream that ended without a terminal callback,
// which happens when the transport absorbed a cancellation.
func (c *Controller) settleAborted(gen uint64) {
	c.mu.Lock()
	if !c.live(gen) {
		c.mu.Unlock()
		return
	}
	c.state = StateAborted
	c.conv.FinalizeLast()
	c.mu.Unlock()
	c.changed()
}

// =============================================================================
// SNAPSHOT ACCESSORS
// =============================================================================

// DashboardID returns the dashboard this session belongs to.
func (c *Controller) DashboardID() string {
	return c.dashboardID
}

// SessionID returns the unique id of this chat session.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPending returns true while a request is in flight.
func (c *Controller) IsPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePending
}

// IsOpen returns the chat panel visibility.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Err returns the surfaced error message, empty when none.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Sources returns the citations of the last completed turn.
func (c *Controller) Sources() []model.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// Messages returns a snapshot of the transcript. The slice is a copy; the
// messages themselves are shared, and only the controller mutates them.
func (c *Controller) Messages() []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*model.Message, len(c.conv.Messages))
	copy(out, c.conv.Messages)
	return out
}

// MessageView is a read-only copy of one transcript entry, safe to render
// from any goroutine while tokens are still arriving.
type MessageView struct {
	Role      model.Role
	Content   string
	Streaming bool
}

// Transcript returns a deep snapshot of the transcript for rendering.
func (c *Controller) Transcript() []MessageView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MessageView, 0, len(c.conv.Messages))
	for _, msg := range c.conv.Messages {
		out = append(out, MessageView{
			Role:      msg.Role,
			Content:   msg.DisplayContent(),
			Streaming: msg.IsStreaming,
		})
	}
	return out
}

// MessageCount returns the number of messages in the transcript.
func (c *Controller) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.MessageCount()
}
