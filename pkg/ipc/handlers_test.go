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

package ipc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/event"
	"github.com/rabbitstack/proctail/pkg/registry"
	"github.com/rabbitstack/proctail/pkg/store"
)

type fakeRegistry struct {
	addErr       error
	entries      []registry.Entry
	removedByTag map[string]int
}

func (f *fakeRegistry) Add(uint32, string) error { return f.addErr }

func (f *fakeRegistry) RemoveByTag(tag string) int {
	if f.removedByTag == nil {
		return 0
	}
	return f.removedByTag[tag]
}

func (f *fakeRegistry) List() []registry.Entry { return f.entries }

type fakeStore struct {
	events  map[string][]*event.Event
	clearOK map[string]bool
	stats   store.Stats
}

func (f *fakeStore) Read(tag string, maxCount int) ([]*event.Event, error) {
	evs, ok := f.events[tag]
	if !ok {
		return nil, kerrors.NotFoundf("unknown tag %q", tag)
	}
	if maxCount >= 0 && maxCount < len(evs) {
		return evs[:maxCount], nil
	}
	return evs, nil
}

func (f *fakeStore) Clear(tag string) error {
	if !f.clearOK[tag] {
		return kerrors.NotFoundf("unknown tag %q", tag)
	}
	return nil
}

func (f *fakeStore) Stats() store.Stats { return f.stats }

type fakeStatus struct {
	running   bool
	monitoring bool
}

func (f *fakeStatus) IsRunning() bool        { return f.running }
func (f *fakeStatus) IsEtwMonitoring() bool  { return f.monitoring }

func newTestRouter(reg WatchRegistry, st EventStore, status StatusSource) *Router {
	return New(Options{}, reg, st, status, nil)
}

func TestHandleAddWatchTargetRequiresTagName(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqAddWatchTarget})
	assert.False(t, resp.Success)
}

func TestHandleAddWatchTargetSuccess(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqAddWatchTarget, ProcessID: 1, TagName: "t1"})
	assert.True(t, resp.Success)
}

func TestHandleAddWatchTargetPropagatesNotFound(t *testing.T) {
	reg := &fakeRegistry{addErr: kerrors.NotFoundf("process 1 is not running")}
	r := newTestRouter(reg, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqAddWatchTarget, ProcessID: 1, TagName: "t1"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "not running")
}

func TestHandleGetWatchTargetsMapsEntries(t *testing.T) {
	reg := &fakeRegistry{entries: []registry.Entry{{PID: 1, Tag: "t1", ProcessName: "a.exe"}}}
	r := newTestRouter(reg, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqGetWatchTargets})
	require.True(t, resp.Success)
	require.Len(t, resp.WatchTargets, 1)
	assert.Equal(t, "a.exe", resp.WatchTargets[0].ProcessName)
}

func TestHandleGetRecordedEventsRequiresTag(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqGetRecordedEvents})
	assert.False(t, resp.Success)
}

func TestHandleGetRecordedEventsUnknownTag(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{events: map[string][]*event.Event{}}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqGetRecordedEvents, TagName: "missing"})
	assert.False(t, resp.Success)
}

func TestHandleGetRecordedEventsSuccess(t *testing.T) {
	st := &fakeStore{events: map[string][]*event.Event{"t1": {{EventName: "a"}, {EventName: "b"}}}}
	r := newTestRouter(&fakeRegistry{}, st, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqGetRecordedEvents, TagName: "t1", MaxCount: 10})
	require.True(t, resp.Success)
	assert.Len(t, resp.Events, 2)
}

func TestHandleClearEventsUnknownTag(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{clearOK: map[string]bool{}}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqClearEvents, TagName: "missing"})
	assert.False(t, resp.Success)
}

func TestHandleGetStatusAggregatesFields(t *testing.T) {
	reg := &fakeRegistry{entries: []registry.Entry{{PID: 1, Tag: "t1"}}}
	st := &fakeStore{stats: store.Stats{TotalTags: 1, TotalEvents: 5}}
	status := &fakeStatus{running: true, monitoring: true}
	r := newTestRouter(reg, st, status)

	resp := r.dispatch(context.Background(), &Request{RequestType: ReqGetStatus})
	require.True(t, resp.Success)
	assert.True(t, resp.IsRunning)
	assert.True(t, resp.IsEtwMonitoring)
	assert.Equal(t, 1, resp.ActiveWatchTargets)
	assert.Equal(t, 1, resp.TotalTags)
	assert.Equal(t, 5, resp.TotalEvents)
}

func TestHandleHealthCheckUnhealthyWhenNotRunning(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{running: false})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqHealthCheck})
	assert.Equal(t, "Unhealthy", resp.Status)
}

func TestHandleHealthCheckDegradedWhenNotMonitoring(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{running: true, monitoring: false})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqHealthCheck})
	assert.Equal(t, "Degraded", resp.Status)
}

func TestHandleHealthCheckHealthy(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{running: true, monitoring: true})
	resp := r.dispatch(context.Background(), &Request{RequestType: ReqHealthCheck})
	assert.Equal(t, "Healthy", resp.Status)
}

func TestDispatchRejectsUnknownRequestType(t *testing.T) {
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(context.Background(), &Request{RequestType: "Bogus"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "Unknown request type")
}

func TestDispatchReturnsNilWhenContextAlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newTestRouter(&fakeRegistry{}, &fakeStore{}, &fakeStatus{})
	resp := r.dispatch(ctx, &Request{RequestType: ReqGetStatus})
	assert.Nil(t, resp)
}
