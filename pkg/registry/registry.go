/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package registry implements the Watch Registry (C3): the authoritative
// mapping of live process id to the set of tags attached to it, with
// ancestry propagation on process birth.
//
// The ingest hot path (TagsFor) must not contend on a global write lock, so
// the registry follows the teacher's process snapshotter shape — a single
// sync.RWMutex guarding a plain map — which is reader-biased under Go's
// runtime for the read-heavy/low-write-rate access pattern this component
// sees (writes only on AddWatchTarget/RemoveWatchTarget/propagate/remove,
// reads on every single kernel event).
package registry

import (
	"expvar"
	"sync"
	"time"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
)

var (
	watchEntryCount  = expvar.NewInt("registry.watch_entry.count")
	reapedWatchEntry = expvar.NewInt("registry.watch_entry.reaped")
)

// reapPeriod is the interval of the defensive sweep that removes watch
// entries for processes whose end event was missed, mirroring the
// teacher's gcDeadProcesses housekeeping.
var reapPeriod = 2 * time.Minute

// Entry is one (pid, tag) binding.
type Entry struct {
	PID          uint32
	Tag          string
	RegisteredAt time.Time
	IsDescendant bool
	ParentPID    uint32

	// Best-effort enrichment, populated lazily by List().
	ProcessName    string
	ExecutablePath string
	StartTime      time.Time
}

// ProcessProber resolves best-effort metadata and liveness for a pid. The
// Windows implementation backs onto OpenProcess/QueryFullProcessImageName/
// GetProcessTimes; a mock implementation backs tests on non-Windows hosts.
type ProcessProber interface {
	// IsAlive reports whether pid currently names a live process.
	IsAlive(pid uint32) bool
	// Describe returns best-effort process name, executable path, and
	// start time for pid. Any of the three may be zero-valued.
	Describe(pid uint32) (name, exePath string, startTime time.Time)
}

// Registry is the concrete Watch Registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[uint32]map[string]*Entry // pid -> tag -> entry
	tags    map[string]struct{}          // every tag ever registered, for rings-persist-until-cleared semantics

	prober ProcessProber

	onTagCreated func(tag string) // hook so the event store can pre-create a ring

	quit chan struct{}
}

// New constructs a Registry. onTagCreated is invoked synchronously inside
// Add, before Add returns, so the event store's ring exists before any
// event could be attributed to the new tag.
func New(prober ProcessProber, onTagCreated func(tag string)) *Registry {
	r := &Registry{
		entries:      make(map[uint32]map[string]*Entry),
		tags:         make(map[string]struct{}),
		prober:       prober,
		onTagCreated: onTagCreated,
		quit:         make(chan struct{}),
	}
	go r.reapDead()
	return r
}

// Add binds pid to tag. Validates that pid names a currently live process.
// Adding a duplicate (pid, tag) pair succeeds as a no-op.
func (r *Registry) Add(pid uint32, tag string) error {
	if r.prober != nil && !r.prober.IsAlive(pid) {
		return kerrors.NotFoundf("process %d is not running", pid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ensureTagLocked(tag)

	byTag, ok := r.entries[pid]
	if !ok {
		byTag = make(map[string]*Entry)
		r.entries[pid] = byTag
	}
	if _, exists := byTag[tag]; exists {
		return nil
	}
	byTag[tag] = &Entry{PID: pid, Tag: tag, RegisteredAt: time.Now()}
	watchEntryCount.Add(1)
	return nil
}

// ensureTagLocked records tag as known and fires onTagCreated the first
// time it's seen. Caller must hold r.mu for writing.
func (r *Registry) ensureTagLocked(tag string) {
	if _, ok := r.tags[tag]; ok {
		return
	}
	r.tags[tag] = struct{}{}
	if r.onTagCreated != nil {
		r.onTagCreated(tag)
	}
}

// RemoveByTag deletes every entry matching tag, across all pids. Returns
// the number of entries removed. A second call on an already-empty tag is
// a no-op that returns 0.
func (r *Registry) RemoveByTag(tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for pid, byTag := range r.entries {
		if _, ok := byTag[tag]; ok {
			delete(byTag, tag)
			removed++
			if len(byTag) == 0 {
				delete(r.entries, pid)
			}
		}
	}
	watchEntryCount.Add(int64(-removed))
	return removed
}

// Remove deletes every entry for pid. Called on process-end, not directly
// by operators.
func (r *Registry) Remove(pid uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	byTag, ok := r.entries[pid]
	if !ok {
		return 0
	}
	n := len(byTag)
	delete(r.entries, pid)
	watchEntryCount.Add(int64(-n))
	return n
}

// Propagate inserts a descendant entry (childPID, tag, ..., parentPID) for
// every tag attached to parentPID. No-op if parentPID isn't watched. The
// caller (the normalizer, on the single ingest stream) must invoke this
// before any subsequent event from childPID can be classified — see the
// ordering note in normalize.Normalizer.Process.
func (r *Registry) Propagate(parentPID, childPID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parentTags, ok := r.entries[parentPID]
	if !ok || len(parentTags) == 0 {
		return
	}

	byTag, ok := r.entries[childPID]
	if !ok {
		byTag = make(map[string]*Entry)
		r.entries[childPID] = byTag
	}
	now := time.Now()
	for tag := range parentTags {
		if _, exists := byTag[tag]; exists {
			continue
		}
		byTag[tag] = &Entry{
			PID:          childPID,
			Tag:          tag,
			RegisteredAt: now,
			IsDescendant: true,
			ParentPID:    parentPID,
		}
		watchEntryCount.Add(1)
	}
}

// TagsFor returns the set of tags currently attached to pid. This is the
// hot read path invoked once per kernel event; it takes only a read lock.
func (r *Registry) TagsFor(pid uint32) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byTag, ok := r.entries[pid]
	if !ok || len(byTag) == 0 {
		return nil
	}
	tags := make([]string, 0, len(byTag))
	for tag := range byTag {
		tags = append(tags, tag)
	}
	return tags
}

// HasTag reports whether pid carries tag, without allocating a slice.
func (r *Registry) HasTag(pid uint32, tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byTag, ok := r.entries[pid]
	if !ok {
		return false
	}
	_, ok = byTag[tag]
	return ok
}

// List returns a snapshot of every watch entry, enriched with best-effort
// process name, executable path, and start time.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	snapshot := make([]Entry, 0)
	for _, byTag := range r.entries {
		for _, e := range byTag {
			cp := *e
			snapshot = append(snapshot, cp)
		}
	}
	r.mu.RUnlock()

	if r.prober == nil {
		return snapshot
	}
	for i := range snapshot {
		name, exe, started := r.prober.Describe(snapshot[i].PID)
		snapshot[i].ProcessName = name
		snapshot[i].ExecutablePath = exe
		snapshot[i].StartTime = started
	}
	return snapshot
}

// Close stops the background reaper.
func (r *Registry) Close() error {
	close(r.quit)
	return nil
}

// reapDead periodically scans for watch entries whose pid no longer names a
// live process and removes them, a defensive backstop for missed
// process-end events (kernel event delivery is best-effort per spec.md §1).
func (r *Registry) reapDead() {
	if r.prober == nil {
		return
	}
	tick := time.NewTicker(reapPeriod)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			r.mu.Lock()
			for pid := range r.entries {
				if r.prober.IsAlive(pid) {
					continue
				}
				n := len(r.entries[pid])
				delete(r.entries, pid)
				watchEntryCount.Add(int64(-n))
				reapedWatchEntry.Add(int64(n))
			}
			r.mu.Unlock()
		case <-r.quit:
			return
		}
	}
}
