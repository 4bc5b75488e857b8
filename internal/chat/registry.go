// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
)

// =============================================================================
// CONTROLLER REGISTRY
// =============================================================================

// Registry hands out the controller that owns each dashboard's chat session.
// A controller is created the first time a dashboard's chat is opened and
// lives until Drop is called (e.g. when the owning view unmounts). Sessions
// are never shared across dashboards.
type Registry struct {
	mu          sync.Mutex
	streamer    Streamer
	controllers map[string]*Controller
}

// NewRegistry creates a registry backed by the given transport.
func NewRegistry(streamer Streamer) *Registry {
	return &Registry{
		streamer:    streamer,
		controllers: make(map[string]*Controller),
	}
}

// For returns the controller for a dashboard, creating it on first use.
func (r *Registry) For(dashboardID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctrl, ok := r.controllers[dashboardID]; ok {
		return ctrl
	}
	ctrl := NewController(dashboardID, r.streamer)
	r.controllers[dashboardID] = ctrl
	return ctrl
}

// Drop removes a dashboard's controller, cancelling any in-flight stream.
// The next For call for that dashboard starts a fresh session.
func (r *Registry) Drop(dashboardID string) {
	r.mu.Lock()
	ctrl, ok := r.controllers[dashboardID]
	if ok {
		delete(r.controllers, dashboardID)
	}
	r.mu.Unlock()

	if ok {
		ctrl.Reset()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
