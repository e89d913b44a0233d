// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the process-wide view of telemetry sources:
// which sources exist, each source's latest frame, and the observers
// interested in each source. It is the single shared structure between
// producers (relay client, plugins) and consumers.
//
// All methods are safe for concurrent use. Reads run under a shared
// lock; mutations and Update run under the exclusive lock, but observer
// callbacks are invoked after the lock is released, on the updating
// goroutine, so an observer may call back into the Registry without
// deadlocking. Observers must not block: they run synchronously in the
// producer's update path.
package registry

import (
	"sync"

	"github.com/andrewmcdan/workbench/telemetry"
)

// Observer receives every frame published for the source it is
// registered against. The frame is a deep copy; the observer may keep
// or mutate it freely.
type Observer func(telemetry.DataFrame)

type observerEntry struct {
	token    int
	callback Observer
}

// Registry is the concurrent source/frame/observer store. The zero
// value is not usable; construct with New.
type Registry struct {
	mu        sync.RWMutex
	metadata  map[string]telemetry.SourceMetadata
	latest    map[string]telemetry.DataFrame
	observers map[string][]observerEntry

	// nextToken is never reused for the life of the process. Token 0
	// is never issued, so callers can use it as an "unset" sentinel.
	nextToken int
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		metadata:  make(map[string]telemetry.SourceMetadata),
		latest:    make(map[string]telemetry.DataFrame),
		observers: make(map[string][]observerEntry),
		nextToken: 1,
	}
}

// RegisterSource upserts metadata by ID. Re-registering an existing ID
// overwrites silently (last write wins) and does not emit a frame.
func (r *Registry) RegisterSource(metadata telemetry.SourceMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadata[metadata.ID] = metadata
}

// UnregisterSource removes the metadata, latest frame, and all
// observers for the source in one atomic step. Unknown IDs are a
// no-op.
func (r *Registry) UnregisterSource(sourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.metadata, sourceID)
	delete(r.latest, sourceID)
	delete(r.observers, sourceID)
}

// IsRegistered reports whether metadata exists for the source.
func (r *Registry) IsRegistered(sourceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.metadata[sourceID]
	return ok
}

// Metadata returns the metadata for the source, if registered.
func (r *Registry) Metadata(sourceID string) (telemetry.SourceMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	metadata, ok := r.metadata[sourceID]
	return metadata, ok
}

// ListSources returns a snapshot of all registered metadata. Order is
// unspecified.
func (r *Registry) ListSources() []telemetry.SourceMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sources := make([]telemetry.SourceMetadata, 0, len(r.metadata))
	for _, metadata := range r.metadata {
		sources = append(sources, metadata)
	}
	return sources
}

// Update stores frame as the latest for its source, then invokes every
// observer registered for that source at the moment of the call. The
// observer set is snapshotted under the lock; callbacks run after the
// lock is released, one pass, on the calling goroutine, each receiving
// its own deep copy.
//
// An unregistered source ID is not an error: the frame is stored and
// no observers fire.
func (r *Registry) Update(frame telemetry.DataFrame) {
	r.mu.Lock()
	r.latest[frame.SourceID] = frame.Clone()
	entries := r.observers[frame.SourceID]
	callbacks := make([]Observer, 0, len(entries))
	for _, entry := range entries {
		callbacks = append(callbacks, entry.callback)
	}
	r.mu.Unlock()

	for _, callback := range callbacks {
		callback(frame.Clone())
	}
}

// Latest returns a copy of the most recent frame stored for the
// source. ok is false when no frame has been stored since process
// start or the last UnregisterSource.
func (r *Registry) Latest(sourceID string) (telemetry.DataFrame, bool) {
	r.mu.RLock()
	frame, ok := r.latest[sourceID]
	r.mu.RUnlock()
	if !ok {
		return telemetry.DataFrame{}, false
	}
	return frame.Clone(), true
}

// AddObserver registers callback for the source and returns its
// removal token. Registering against a source that does not exist yet
// is legal; the observer receives nothing until frames arrive.
func (r *Registry) AddObserver(sourceID string, callback Observer) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := r.nextToken
	r.nextToken++
	r.observers[sourceID] = append(r.observers[sourceID], observerEntry{
		token:    token,
		callback: callback,
	})
	return token
}

// RemoveObserver removes the observer registered under (sourceID,
// token). Removing an unknown pair is a no-op. An Update already in
// flight may still deliver to the removed observer; removal is
// guaranteed only for subsequent updates.
func (r *Registry) RemoveObserver(sourceID string, token int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, ok := r.observers[sourceID]
	if !ok {
		return
	}
	for i, entry := range entries {
		if entry.token == token {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.observers, sourceID)
	} else {
		r.observers[sourceID] = entries
	}
}
