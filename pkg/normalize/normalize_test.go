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

package normalize

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabbitstack/proctail/pkg/event"
)

type fakeRegistry struct {
	mu         sync.Mutex
	tags       map[uint32][]string
	propagated [][2]uint32
	removed    []uint32
}

func newFakeRegistry(tags map[uint32][]string) *fakeRegistry {
	return &fakeRegistry{tags: tags}
}

func (r *fakeRegistry) TagsFor(pid uint32) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[pid]
}

func (r *fakeRegistry) Propagate(parentPID, childPID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.propagated = append(r.propagated, [2]uint32{parentPID, childPID})
	r.tags[childPID] = append(r.tags[childPID], r.tags[parentPID]...)
}

func (r *fakeRegistry) Remove(pid uint32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.tags[pid])
	delete(r.tags, pid)
	r.removed = append(r.removed, pid)
	return n
}

type fakeSink struct {
	mu     sync.Mutex
	events map[string][]*event.Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{events: make(map[string][]*event.Event)}
}

func (s *fakeSink) Append(tag string, e *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[tag] = append(s.events[tag], e)
}

func TestProcessAttributesToAllTagsWatchingPID(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{100: {"t1", "t2"}})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{PID: 100, Provider: fileProvider, Kind: "Create", Params: map[string]interface{}{payloadFileName: `C:\a`}})

	require.Len(t, sink.events["t1"], 1)
	require.Len(t, sink.events["t2"], 1)
	assert.Equal(t, event.KindFile, sink.events["t1"][0].Kind)
	assert.Equal(t, "t1", sink.events["t1"][0].Tag)
}

func TestProcessDiscardsWhenNoTagWatchesPID(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{PID: 9, Provider: fileProvider, Kind: "Create", Params: map[string]interface{}{payloadFileName: `C:\a`}})

	assert.Empty(t, sink.events)
}

func TestProcessPropagatesBeforeChildCanBeClassified(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{1: {"parent-tag"}})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{
		PID:      1,
		Provider: processProvider,
		Kind:     kindProcessStart,
		Params:   map[string]interface{}{payloadChildPID: uint32(2), payloadImageName: "child.exe"},
	})

	assert.Equal(t, []string{"parent-tag"}, reg.TagsFor(2))
	require.Len(t, reg.propagated, 1)
	assert.Equal(t, [2]uint32{1, 2}, reg.propagated[0])
}

func TestProcessEndEmitsBeforeRemovingFromRegistry(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{5: {"t1"}})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{PID: 5, Provider: processProvider, Kind: kindProcessEnd, Params: map[string]interface{}{payloadExitCode: uint32(1)}})

	require.Len(t, sink.events["t1"], 1)
	assert.Equal(t, event.KindProcessEnd, sink.events["t1"][0].Kind)
	assert.Equal(t, []uint32{5}, reg.removed)
	assert.Empty(t, reg.TagsFor(5))
}

func TestProcessCarriesCommonFieldsThrough(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{3: {"t1"}})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{
		PID:        3,
		TID:        4,
		Provider:   "Some-Other-Provider",
		Kind:       "Oddball",
		ActivityID: "act-1",
		Params:     map[string]interface{}{"foo": "bar"},
	})

	ev := sink.events["t1"][0]
	assert.Equal(t, event.KindGeneric, ev.Kind)
	assert.Equal(t, uint32(3), ev.PID)
	assert.Equal(t, uint32(4), ev.TID)
	assert.Equal(t, "Some-Other-Provider", ev.Provider)
	assert.Equal(t, "Oddball", ev.EventName)
	assert.Equal(t, "act-1", ev.ActivityID)
	assert.Equal(t, "bar", ev.Payload["foo"])
}

func TestProcessGeneratesActivityIDWhenAbsent(t *testing.T) {
	reg := newFakeRegistry(map[uint32][]string{3: {"t1"}})
	sink := newFakeSink()
	n := New(reg, sink)

	n.Process(&event.Raw{PID: 3})

	assert.NotEmpty(t, sink.events["t1"][0].ActivityID)
}
