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

// Package store implements the Event Store (C4): per-tag bounded ring
// buffers with independent locks, so a slow consumer on one tag can never
// stall ingestion into another.
package store

import (
	"expvar"
	"sync"
	"unsafe"

	"github.com/gammazero/deque"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/event"
)

var (
	ringAppends  = expvar.NewInt("store.ring.appends")
	ringEvicted  = expvar.NewInt("store.ring.evicted")
	ringReadOps  = expvar.NewInt("store.ring.reads")
	approxEvSize = uint64(unsafe.Sizeof(event.Event{}))
)

// ring is a single tag's bounded FIFO. gammazero/deque backs it: pushing at
// the back and popping from the front are both O(1), which is what FIFO
// eviction needs under a per-tag lock held only for the duration of one
// append or one snapshot copy.
type ring struct {
	mu       sync.Mutex
	capacity int
	buf      deque.Deque
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) append(e *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf.Len() >= r.capacity {
		r.buf.PopFront()
		ringEvicted.Add(1)
	}
	r.buf.PushBack(e)
	ringAppends.Add(1)
}

// snapshot returns up to maxCount events in insertion (oldest-to-newest)
// order. The returned slice is a copy; subsequent appends never mutate it.
func (r *ring) snapshot(maxCount int) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ringReadOps.Add(1)
	n := r.buf.Len()
	if maxCount >= 0 && maxCount < n {
		n = maxCount
	}
	out := make([]*event.Event, 0, n)
	if n == 0 {
		return out
	}
	start := r.buf.Len() - n
	for i := start; i < r.buf.Len(); i++ {
		out = append(out, r.buf.At(i).(*event.Event))
	}
	return out
}

func (r *ring) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf.Clear()
}

func (r *ring) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Len()
}

// Stats summarizes the store's current footprint, consumed by the
// GetStatus IPC handler.
type Stats struct {
	TotalTags        int
	TotalEvents      int
	PerTagCount      map[string]int
	EstimatedBytes   uint64
}

// Store is the concrete Event Store.
type Store struct {
	mu            sync.RWMutex
	rings         map[string]*ring
	defaultCap    int
}

// New constructs a Store in which every tag's ring holds at most
// defaultCapacity events.
func New(defaultCapacity int) *Store {
	return &Store{
		rings:      make(map[string]*ring),
		defaultCap: defaultCapacity,
	}
}

// EnsureTag creates the ring for tag if it doesn't already exist. Rings
// persist for every tag ever registered, even once empty, until an
// explicit Clear — never silently dropped just because RemoveByTag was
// called on the registry side.
func (s *Store) EnsureTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rings[tag]; ok {
		return
	}
	s.rings[tag] = newRing(s.defaultCap)
}

func (s *Store) ringFor(tag string) (*ring, bool) {
	s.mu.RLock()
	r, ok := s.rings[tag]
	s.mu.RUnlock()
	return r, ok
}

// Append stores e under tag, evicting the oldest entry if the ring is full.
// Append never creates a ring that doesn't already exist — EnsureTag (via
// the registry's onTagCreated hook) is the sole ring constructor, so a
// producer can never silently materialize state for a tag nobody asked to
// watch.
func (s *Store) Append(tag string, e *event.Event) {
	r, ok := s.ringFor(tag)
	if !ok {
		return
	}
	r.append(e)
}

// Read returns up to maxCount of the most-recently-appended events for tag,
// oldest-to-newest. Returns ErrNotFound for an unknown tag.
func (s *Store) Read(tag string, maxCount int) ([]*event.Event, error) {
	r, ok := s.ringFor(tag)
	if !ok {
		return nil, kerrors.NotFoundf("unknown tag %q", tag)
	}
	return r.snapshot(maxCount), nil
}

// Clear empties tag's ring, retaining the ring itself. Returns ErrNotFound
// for an unknown tag.
func (s *Store) Clear(tag string) error {
	r, ok := s.ringFor(tag)
	if !ok {
		return kerrors.NotFoundf("unknown tag %q", tag)
	}
	r.clear()
	return nil
}

// Stats computes a point-in-time summary across every tag.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		TotalTags:   len(s.rings),
		PerTagCount: make(map[string]int, len(s.rings)),
	}
	for tag, r := range s.rings {
		n := r.len()
		st.PerTagCount[tag] = n
		st.TotalEvents += n
	}
	st.EstimatedBytes = uint64(st.TotalEvents) * approxEvSize
	return st
}
