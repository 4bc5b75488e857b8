// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/morganforge/dashchat/internal/model"
)

// recorder collects callback invocations for assertions.
type recorder struct {
	mu      sync.Mutex
	tokens  []string
	dones   [][]model.Source
	errors  []string
}

func (r *recorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnToken: func(t string) {
			r.mu.Lock()
			r.tokens = append(r.tokens, t)
			r.mu.Unlock()
		},
		OnDone: func(s []model.Source) {
			r.mu.Lock()
			r.dones = append(r.dones, s)
			r.mu.Unlock()
		},
		OnError: func(m string) {
			r.mu.Lock()
			r.errors = append(r.errors, m)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) content() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.tokens, "")
}

// sseHandler writes the given records as an event stream, flushing after
// each so the client sees them incrementally.
func sseHandler(t *testing.T, records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer is not a flusher")
		}
		for _, rec := range records {
			fmt.Fprintf(w, "data: %s\n\n", rec)
			flusher.Flush()
		}
	}
}

func TestStreamChat_TokenOrderAndDone(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`{"type":"token","data":"Hi"}`,
		`{"type":"token","data":" there"}`,
		`{"type":"done","sources":[]}`,
	))
	defer server.Close()

	rec := &recorder{}
	client := NewClient(server.URL)
	client.StreamChat(context.Background(), "dash-1", ChatRequest{Message: "Hello"}, rec.callbacks())

	if got := rec.content(); got != "Hi there" {
		t.Errorf("content = %q, want %q", got, "Hi there")
	}
	if len(rec.dones) != 1 {
		t.Fatalf("OnDone called %d times, want 1", len(rec.dones))
	}
	if rec.dones[0] == nil || len(rec.dones[0]) != 0 {
		t.Errorf("sources = %#v, want empty non-nil slice", rec.dones[0])
	}
	if len(rec.errors) != 0 {
		t.Errorf("unexpected errors: %v", rec.errors)
	}
}

func TestStreamChat_DoneWithoutSourcesDefaultsEmpty(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, `{"type":"done"}`))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.dones) != 1 {
		t.Fatalf("OnDone called %d times, want 1", len(rec.dones))
	}
	if rec.dones[0] == nil {
		t.Error("sources should default to an empty slice, got nil")
	}
}

func TestStreamChat_MalformedFrameRecovered(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`{not json}`,
		`{"type":"token","data":"ok"}`,
		`{"type":"done"}`,
	))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.tokens) != 1 || rec.tokens[0] != "ok" {
		t.Errorf("tokens = %v, want [ok]", rec.tokens)
	}
	if len(rec.errors) != 0 {
		t.Errorf("malformed frame surfaced as error: %v", rec.errors)
	}
	if len(rec.dones) != 1 {
		t.Errorf("OnDone called %d times, want 1", len(rec.dones))
	}
}

func TestStreamChat_ErrorEventTerminates(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`{"type":"token","data":"partial"}`,
		`{"type":"error","error":"model overloaded"}`,
		`{"type":"token","data":"never seen"}`,
	))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if got := rec.content(); got != "partial" {
		t.Errorf("content = %q, want %q (no tokens after error)", got, "partial")
	}
	if len(rec.errors) != 1 || rec.errors[0] != "model overloaded" {
		t.Errorf("errors = %v", rec.errors)
	}
	if len(rec.dones) != 0 {
		t.Errorf("OnDone fired alongside OnError")
	}
}

func TestStreamChat_HTTPErrorWithDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"Unauthorized"}`))
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(rec.errors))
	}
	if !strings.Contains(rec.errors[0], "401") {
		t.Errorf("error %q does not mention the status code", rec.errors[0])
	}
	if !strings.Contains(rec.errors[0], "Unauthorized") {
		t.Errorf("error %q does not include the detail text", rec.errors[0])
	}
}

func TestStreamChat_HTTPErrorWithoutEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(rec.errors))
	}
	if !strings.Contains(rec.errors[0], "500") {
		t.Errorf("error %q does not mention the status code", rec.errors[0])
	}
}

func TestStreamChat_EmptyBodyReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(rec.errors))
	}
	if len(rec.dones) != 0 {
		t.Error("OnDone fired for an empty body")
	}
}

func TestStreamChat_TruncatedStreamReported(t *testing.T) {
	server := httptest.NewServer(sseHandler(t,
		`{"type":"token","data":"cut "}`,
	))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if got := rec.content(); got != "cut " {
		t.Errorf("content = %q", got)
	}
	if len(rec.errors) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(rec.errors))
	}
}

func TestStreamChat_CancellationIsSilent(t *testing.T) {
	firstToken := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"token\",\"data\":\"Hi\"}\n\n")
		flusher.Flush()
		close(firstToken)
		// Hold the stream open until the client goes away.
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	finished := make(chan struct{})
	go func() {
		NewClient(server.URL).StreamChat(ctx, "d", ChatRequest{Message: "q"}, rec.callbacks())
		close(finished)
	}()

	<-firstToken
	cancel()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("StreamChat did not return after cancellation")
	}

	if len(rec.errors) != 0 {
		t.Errorf("cancellation surfaced as error: %v", rec.errors)
	}
	if len(rec.dones) != 0 {
		t.Errorf("cancellation surfaced as done")
	}
	if got := rec.content(); got != "Hi" {
		t.Errorf("partial content = %q, want %q", got, "Hi")
	}
}

func TestStreamChat_ConnectionFailureReported(t *testing.T) {
	// A server that is immediately closed yields a connection error.
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	rec := &recorder{}
	NewClient(addr).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if len(rec.errors) != 1 {
		t.Fatalf("OnError called %d times, want 1", len(rec.errors))
	}
	if len(rec.tokens) != 0 || len(rec.dones) != 0 {
		t.Error("no tokens or done expected on connection failure")
	}
}

func TestStreamChat_RequestShape(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	var gotBody ChatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		sseHandler(t, `{"type":"done"}`)(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL).WithTokenSource(StaticToken("sekret"))
	req := ChatRequest{
		Message: "what changed?",
		ConversationHistory: []model.ChatMessage{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		},
	}
	client.StreamChat(context.Background(), "sales board", req, StreamCallbacks{})

	if gotPath != "/dashboards/sales%20board/chat" && gotPath != "/dashboards/sales board/chat" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer sekret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotBody.Message != "what changed?" || len(gotBody.ConversationHistory) != 2 {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestStreamChat_NoTokenOmitsHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		sseHandler(t, `{"type":"done"}`)(w, r)
	}))
	defer server.Close()

	rec := &recorder{}
	NewClient(server.URL).StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, rec.callbacks())

	if sawAuth {
		t.Error("Authorization header sent without a credential")
	}
	if len(rec.dones) != 1 {
		t.Errorf("request without credential should still stream, dones = %d", len(rec.dones))
	}
}

func TestStreamChat_EmptyTokenSourceOmitsHeader(t *testing.T) {
	var sawAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		sseHandler(t, `{"type":"done"}`)(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL).WithTokenSource(TokenFunc(func() string { return "" }))
	client.StreamChat(context.Background(), "d", ChatRequest{Message: "q"}, StreamCallbacks{})

	if sawAuth {
		t.Error("Authorization header sent for empty credential")
	}
}
