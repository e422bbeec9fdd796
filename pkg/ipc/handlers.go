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

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
)

// dispatch routes req to its handler. Handlers are cheap synchronous calls
// into the registry/store capabilities — ctx is consulted once, before the
// handler runs: if it is already done, dispatch returns nil so that no
// reply is sent. Handlers themselves do not observe ctx.
func (r *Router) dispatch(ctx context.Context, req *Request) *Response {
	if err := checkKnownType(req); err != nil {
		return errorResponse(err.Error())
	}

	select {
	case <-ctx.Done():
		return nil
	default:
	}

	switch req.RequestType {
	case ReqAddWatchTarget:
		return r.handleAddWatchTarget(req)
	case ReqRemoveWatchTarget:
		return r.handleRemoveWatchTarget(req)
	case ReqGetWatchTargets:
		return r.handleGetWatchTargets()
	case ReqGetRecordedEvents:
		return r.handleGetRecordedEvents(req)
	case ReqClearEvents:
		return r.handleClearEvents(req)
	case ReqGetStatus:
		return r.handleGetStatus()
	case ReqHealthCheck:
		return r.handleHealthCheck()
	case ReqShutdown:
		return r.handleShutdown()
	default:
		// unreachable: checkKnownType already rejected anything else
		return errorResponse("Unknown request type")
	}
}

func (r *Router) handleAddWatchTarget(req *Request) *Response {
	if req.TagName == "" {
		return errorResponse("TagName must not be empty")
	}
	if err := r.registry.Add(req.ProcessID, req.TagName); err != nil {
		if kerrors.IsNotFound(err) {
			return errorResponse(err.Error())
		}
		return errorResponse(err.Error())
	}
	return okResponse()
}

func (r *Router) handleRemoveWatchTarget(req *Request) *Response {
	if req.TagName == "" {
		return errorResponse("TagName must not be empty")
	}
	r.registry.RemoveByTag(req.TagName)
	return okResponse()
}

func (r *Router) handleGetWatchTargets() *Response {
	entries := r.registry.List()
	targets := make([]WatchTargetInfo, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, WatchTargetInfo{
			ProcessID:      e.PID,
			ProcessName:    e.ProcessName,
			ExecutablePath: e.ExecutablePath,
			StartTime:      e.StartTime,
			TagName:        e.Tag,
		})
	}
	resp := okResponse()
	resp.WatchTargets = targets
	return resp
}

func (r *Router) handleGetRecordedEvents(req *Request) *Response {
	if req.TagName == "" {
		return errorResponse("TagName must not be empty")
	}
	events, err := r.store.Read(req.TagName, req.MaxCount)
	if err != nil {
		return errorResponse(err.Error())
	}
	resp := okResponse()
	resp.Events = events
	return resp
}

func (r *Router) handleClearEvents(req *Request) *Response {
	if req.TagName == "" {
		return errorResponse("TagName must not be empty")
	}
	if err := r.store.Clear(req.TagName); err != nil {
		return errorResponse(err.Error())
	}
	return okResponse()
}

func (r *Router) handleGetStatus() *Response {
	st := r.store.Stats()
	resp := okResponse()
	resp.IsRunning = r.status.IsRunning()
	resp.IsEtwMonitoring = r.status.IsEtwMonitoring()
	resp.IsPipeServerRunning = r.isRunning()
	resp.ActiveWatchTargets = len(r.registry.List())
	resp.TotalTags = st.TotalTags
	resp.TotalEvents = st.TotalEvents
	resp.EstimatedMemoryUsageMB = float64(st.EstimatedBytes) / (1024 * 1024)
	return resp
}

func (r *Router) handleHealthCheck() *Response {
	resp := okResponse()
	switch {
	case !r.status.IsRunning():
		resp.Status = "Unhealthy"
	case !r.status.IsEtwMonitoring():
		resp.Status = "Degraded"
	default:
		resp.Status = "Healthy"
	}
	return resp
}

func (r *Router) handleShutdown() *Response {
	return okResponse()
}

func (r *Router) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
