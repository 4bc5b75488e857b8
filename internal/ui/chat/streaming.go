// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// RENDER GATE
// =============================================================================

// RenderGate coalesces controller change notifications into a capped render
// rate. Tokens can arrive far faster than a terminal can usefully repaint;
// repainting on every one causes flicker and burns CPU. The gate admits a
// render when either enough changes have accumulated or enough time has
// passed since the last render.
//
// Thread-safety: changes are marked from the stream goroutine while renders
// happen in the Bubble Tea loop, so all operations take the mutex.
type RenderGate struct {
	mu         sync.Mutex
	pending    int
	lastRender time.Time

	batchSize   int           // Changes per admitted render
	minInterval time.Duration // Min time between renders
}

// Gate defaults: ~30fps with a small batch so short answers still feel live.
const (
	defaultBatchSize   = 15
	defaultMinInterval = 33 * time.Millisecond
)

// NewRenderGate creates a gate with default settings.
func NewRenderGate() *RenderGate {
	return NewRenderGateWithConfig(defaultBatchSize, defaultMinInterval)
}

// NewRenderGateWithConfig creates a gate with custom thresholds.
func NewRenderGateWithConfig(batchSize int, minInterval time.Duration) *RenderGate {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if minInterval <= 0 {
		minInterval = defaultMinInterval
	}
	return &RenderGate{
		batchSize:   batchSize,
		minInterval: minInterval,
		lastRender:  time.Now(),
	}
}

// Mark records one state change awaiting render.
func (g *RenderGate) Mark() {
	g.mu.Lock()
	g.pending++
	g.mu.Unlock()
}

// Pending returns the number of changes awaiting render.
func (g *RenderGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// TakeRender reports whether a render should happen now, consuming the
// pending changes when it does.
func (g *RenderGate) TakeRender() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == 0 {
		return false
	}
	if g.pending < g.batchSize && time.Since(g.lastRender) < g.minInterval {
		return false
	}

	g.pending = 0
	g.lastRender = time.Now()
	return true
}

// ForceRender consumes pending changes unconditionally, reporting whether
// there were any. Used when a turn settles so the final state always paints.
func (g *RenderGate) ForceRender() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	had := g.pending > 0
	g.pending = 0
	g.lastRender = time.Now()
	return had
}

// Reset discards pending changes without rendering.
func (g *RenderGate) Reset() {
	g.mu.Lock()
	g.pending = 0
	g.lastRender = time.Now()
	g.mu.Unlock()
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickCmd schedules the next throttled render check while streaming.
func streamTickCmd() tea.Cmd {
	return tea.Tick(defaultMinInterval, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}
