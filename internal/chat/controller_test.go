// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morganforge/dashchat/internal/assist"
	"github.com/morganforge/dashchat/internal/model"
)

// fakeStreamer is a scriptable transport double.
type fakeStreamer struct {
	mu      sync.Mutex
	calls   int
	lastReq assist.ChatRequest
	script  func(ctx context.Context, cb assist.StreamCallbacks)
}

func (f *fakeStreamer) StreamChat(ctx context.Context, dashboardID string, req assist.ChatRequest, cb assist.StreamCallbacks) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	script := f.script
	f.mu.Unlock()

	if script != nil {
		script(ctx, cb)
	}
}

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStreamer) request() assist.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

// scriptedReply responds with the given tokens followed by done.
func scriptedReply(tokens []string, sources []model.Source) func(context.Context, assist.StreamCallbacks) {
	return func(ctx context.Context, cb assist.StreamCallbacks) {
		for _, tok := range tokens {
			cb.OnToken(tok)
		}
		cb.OnDone(sources)
	}
}

func await(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("turn did not settle")
	}
}

// =============================================================================
// SEND
// =============================================================================

func TestSendMessage_StreamsIntoPlaceholder(t *testing.T) {
	streamer := &fakeStreamer{script: scriptedReply([]string{"Hi", " there"}, []model.Source{})}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage("Hello"))

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)

	assert.Equal(t, StateDone, ctrl.State())
	assert.False(t, ctrl.IsPending())
	assert.Empty(t, ctrl.Err())
	assert.Empty(t, ctrl.Sources())
}

func TestSendMessage_SetsSources(t *testing.T) {
	sources := []model.Source{{DatasetName: "sales", Relevance: "column match"}}
	streamer := &fakeStreamer{script: scriptedReply([]string{"see sales"}, sources)}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage("where?"))

	got := ctrl.Sources()
	require.Len(t, got, 1)
	assert.Equal(t, "sales", got[0].DatasetName)
}

func TestSendMessage_EmptyInputIsSilentNoOp(t *testing.T) {
	streamer := &fakeStreamer{}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage(""))
	await(t, ctrl.SendMessage("   \t\n"))

	assert.Equal(t, 0, streamer.callCount())
	assert.Equal(t, 0, ctrl.MessageCount())
	assert.Equal(t, StateIdle, ctrl.State())
	assert.Empty(t, ctrl.Err())
}

func TestSendMessage_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		<-release
		cb.OnDone(nil)
	}}
	ctrl := NewController("dash-1", streamer)

	first := ctrl.SendMessage("first")
	require.Eventually(t, ctrl.IsPending, time.Second, time.Millisecond)

	// Second send while pending is dropped, not queued.
	await(t, ctrl.SendMessage("second"))
	assert.Equal(t, 1, streamer.callCount())
	assert.Equal(t, "first", streamer.request().Message)
	assert.Equal(t, 2, ctrl.MessageCount())

	close(release)
	await(t, first)
	assert.Equal(t, 1, streamer.callCount())
}

func TestSendMessage_HistoryExcludesCurrentTurn(t *testing.T) {
	streamer := &fakeStreamer{script: scriptedReply([]string{"Hi"}, nil)}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage("hello"))
	require.Empty(t, streamer.request().ConversationHistory,
		"first turn must send an empty transcript")

	await(t, ctrl.SendMessage("again"))
	history := streamer.request().ConversationHistory
	require.Len(t, history, 2, "second turn sends only the settled first turn")
	assert.Equal(t, model.ChatMessage{Role: "user", Content: "hello"}, history[0])
	assert.Equal(t, model.ChatMessage{Role: "assistant", Content: "Hi"}, history[1])
}

// =============================================================================
// ERRORS
// =============================================================================

func TestErroredTurn_KeepsPartialContent(t *testing.T) {
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		cb.OnToken("par")
		cb.OnError("model overloaded")
	}}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage("q"))

	assert.Equal(t, StateErrored, ctrl.State())
	assert.Equal(t, "model overloaded", ctrl.Err())
	assert.False(t, ctrl.IsPending())

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "par", msgs[1].Content, "partial tokens survive an error")
}

func TestError_ClearsOnNextSend(t *testing.T) {
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		cb.OnError("boom")
	}}
	ctrl := NewController("dash-1", streamer)

	await(t, ctrl.SendMessage("q"))
	require.Equal(t, "boom", ctrl.Err())

	streamer.mu.Lock()
	streamer.script = scriptedReply([]string{"fine"}, nil)
	streamer.mu.Unlock()

	await(t, ctrl.SendMessage("retry"))
	assert.Empty(t, ctrl.Err())
	assert.Equal(t, StateDone, ctrl.State())
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancelStream_SilentAndPreservesPartial(t *testing.T) {
	started := make(chan struct{})
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		cb.OnToken("cut ")
		close(started)
		// Transport absorbs cancellation: return with no terminal callback.
		<-ctx.Done()
	}}
	ctrl := NewController("dash-1", streamer)

	done := ctrl.SendMessage("q")
	<-started
	ctrl.CancelStream()
	await(t, done)

	assert.False(t, ctrl.IsPending())
	assert.Empty(t, ctrl.Err(), "cancellation must not surface as an error")
	assert.Equal(t, StateAborted, ctrl.State())

	msgs := ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "cut ", msgs[1].Content)
	assert.False(t, msgs[1].IsStreaming)
}

func TestCancelStream_NoOpWhenIdle(t *testing.T) {
	ctrl := NewController("dash-1", &fakeStreamer{})
	ctrl.CancelStream()
	assert.Equal(t, StateIdle, ctrl.State())
}

// =============================================================================
// RESET
// =============================================================================

func TestReset_ClearsAllState(t *testing.T) {
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		cb.OnToken("x")
		cb.OnError("boom")
	}}
	ctrl := NewController("dash-1", streamer)
	ctrl.TogglePanel()

	await(t, ctrl.SendMessage("q"))
	require.NotEmpty(t, ctrl.Err())

	ctrl.Reset()

	assert.Equal(t, 0, ctrl.MessageCount())
	assert.Empty(t, ctrl.Err())
	assert.Empty(t, ctrl.Sources())
	assert.False(t, ctrl.IsPending())
	assert.False(t, ctrl.IsOpen())
	assert.Equal(t, StateIdle, ctrl.State())
}

func TestReset_CancelsInFlightAndDropsLateCallbacks(t *testing.T) {
	started := make(chan struct{})
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		cb.OnToken("early")
		close(started)
		<-ctx.Done()
		// Late callbacks from the superseded stream must be ignored.
		cb.OnToken("late")
		cb.OnDone([]model.Source{{DatasetName: "stale", Relevance: "stale"}})
	}}
	ctrl := NewController("dash-1", streamer)

	done := ctrl.SendMessage("q")
	<-started
	ctrl.Reset()
	await(t, done)

	assert.Equal(t, 0, ctrl.MessageCount())
	assert.Empty(t, ctrl.Sources())
	assert.Empty(t, ctrl.Err())
	assert.Equal(t, StateIdle, ctrl.State())
}

// =============================================================================
// PANEL / NOTIFY
// =============================================================================

func TestTogglePanel_IndependentOfStreamState(t *testing.T) {
	release := make(chan struct{})
	streamer := &fakeStreamer{script: func(ctx context.Context, cb assist.StreamCallbacks) {
		<-release
		cb.OnDone(nil)
	}}
	ctrl := NewController("dash-1", streamer)

	assert.False(t, ctrl.IsOpen())
	ctrl.TogglePanel()
	assert.True(t, ctrl.IsOpen())

	done := ctrl.SendMessage("q")
	require.Eventually(t, ctrl.IsPending, time.Second, time.Millisecond)
	ctrl.TogglePanel()
	assert.False(t, ctrl.IsOpen())
	assert.True(t, ctrl.IsPending())

	close(release)
	await(t, done)
}

func TestNotify_FiresOnStateChanges(t *testing.T) {
	streamer := &fakeStreamer{script: scriptedReply([]string{"a", "b"}, nil)}
	ctrl := NewController("dash-1", streamer)

	var mu sync.Mutex
	var count int
	ctrl.SetNotify(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	await(t, ctrl.SendMessage("q"))

	mu.Lock()
	defer mu.Unlock()
	// Send start, two tokens, done: at least four changes.
	assert.GreaterOrEqual(t, count, 4)
}
