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

package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	alive map[uint32]bool
}

func newFakeProber(alivePIDs ...uint32) *fakeProber {
	p := &fakeProber{alive: make(map[uint32]bool)}
	for _, pid := range alivePIDs {
		p.alive[pid] = true
	}
	return p
}

func (p *fakeProber) IsAlive(pid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive[pid]
}

func (p *fakeProber) kill(pid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alive[pid] = false
}

func (p *fakeProber) Describe(pid uint32) (string, string, time.Time) {
	return "proc.exe", `C:\proc.exe`, time.Unix(0, 0)
}

func TestAddRejectsDeadProcess(t *testing.T) {
	prober := newFakeProber()
	r := New(prober, nil)
	defer r.Close()

	err := r.Add(123, "t1")
	require.Error(t, err)
}

func TestAddIsIdempotent(t *testing.T) {
	prober := newFakeProber(42)
	r := New(prober, nil)
	defer r.Close()

	require.NoError(t, r.Add(42, "t1"))
	require.NoError(t, r.Add(42, "t1"))
	assert.Equal(t, []string{"t1"}, r.TagsFor(42))
}

func TestOnTagCreatedFiresOnce(t *testing.T) {
	prober := newFakeProber(1, 2)
	var created []string
	r := New(prober, func(tag string) { created = append(created, tag) })
	defer r.Close()

	require.NoError(t, r.Add(1, "t1"))
	require.NoError(t, r.Add(2, "t1"))
	require.NoError(t, r.Add(2, "t2"))
	assert.Equal(t, []string{"t1", "t2"}, created)
}

func TestPropagateCopiesParentTags(t *testing.T) {
	prober := newFakeProber(1, 2)
	r := New(prober, nil)
	defer r.Close()

	require.NoError(t, r.Add(1, "t1"))
	r.Propagate(1, 2)

	assert.True(t, r.HasTag(2, "t1"))
}

func TestPropagateNoopWhenParentUnwatched(t *testing.T) {
	prober := newFakeProber(1, 2)
	r := New(prober, nil)
	defer r.Close()

	r.Propagate(1, 2)
	assert.Empty(t, r.TagsFor(2))
}

func TestRemoveByTagAcrossPIDs(t *testing.T) {
	prober := newFakeProber(1, 2)
	r := New(prober, nil)
	defer r.Close()

	require.NoError(t, r.Add(1, "t1"))
	require.NoError(t, r.Add(2, "t1"))

	removed := r.RemoveByTag("t1")
	assert.Equal(t, 2, removed)
	assert.Empty(t, r.TagsFor(1))
	assert.Empty(t, r.TagsFor(2))

	assert.Equal(t, 0, r.RemoveByTag("t1"))
}

func TestRemoveDeletesAllTagsForPID(t *testing.T) {
	prober := newFakeProber(1)
	r := New(prober, nil)
	defer r.Close()

	require.NoError(t, r.Add(1, "t1"))
	require.NoError(t, r.Add(1, "t2"))

	n := r.Remove(1)
	assert.Equal(t, 2, n)
	assert.Empty(t, r.TagsFor(1))
}

func TestListEnrichesWithProberMetadata(t *testing.T) {
	prober := newFakeProber(7)
	r := New(prober, nil)
	defer r.Close()

	require.NoError(t, r.Add(7, "t1"))
	entries := r.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "proc.exe", entries[0].ProcessName)
}
