// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// TOKEN HOLDER
// =============================================================================

// TokenHolder is the credential source consulted per chat request. It holds
// either a static token or one read from a file; when watching a file, a
// rotated credential is picked up without restart. An empty token is a valid
// state, not an error: requests then go out without an Authorization header.
type TokenHolder struct {
	mu      sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewTokenHolder builds a holder from the configuration: a token file wins
// over a static token when both are set.
func NewTokenHolder(cfg *Config) (*TokenHolder, error) {
	th := &TokenHolder{}

	if cfg.TokenFile != "" {
		if err := th.watchFile(cfg.TokenFile); err != nil {
			return nil, err
		}
		return th, nil
	}

	th.token = strings.TrimSpace(cfg.Token)
	return th, nil
}

// Token implements assist.TokenSource.
func (th *TokenHolder) Token() string {
	th.mu.RLock()
	defer th.mu.RUnlock()
	return th.token
}

// Set replaces the held token.
func (th *TokenHolder) Set(token string) {
	th.mu.Lock()
	th.token = strings.TrimSpace(token)
	th.mu.Unlock()
}

// Close stops the file watcher, if any.
func (th *TokenHolder) Close() error {
	if th.watcher == nil {
		return nil
	}
	close(th.done)
	return th.watcher.Close()
}

// =============================================================================
// FILE WATCHING
// =============================================================================

// watchFile loads the token from path and re-reads it on file changes.
// Watching the directory rather than the file survives the rename dance
// most credential writers do (write temp, rename over).
func (th *TokenHolder) watchFile(path string) error {
	th.reload(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}

	th.watcher = watcher
	th.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					th.reload(path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: token watcher error: %v", err)
			case <-th.done:
				return
			}
		}
	}()

	return nil
}

// reload reads the token file, keeping the previous token on read failure.
func (th *TokenHolder) reload(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("config: cannot read token file %s: %v", path, err)
		return
	}
	th.Set(string(data))
}
