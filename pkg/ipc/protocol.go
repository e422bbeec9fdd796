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

// Package ipc implements the IPC Router (C5): a framed request/response
// protocol served over a named pipe, one round-trip per connection.
package ipc

import (
	"time"

	"github.com/rabbitstack/proctail/pkg/event"
)

// RequestType discriminates the eight requests the wire protocol supports.
type RequestType string

const (
	ReqAddWatchTarget    RequestType = "AddWatchTarget"
	ReqRemoveWatchTarget RequestType = "RemoveWatchTarget"
	ReqGetWatchTargets   RequestType = "GetWatchTargets"
	ReqGetRecordedEvents RequestType = "GetRecordedEvents"
	ReqClearEvents       RequestType = "ClearEvents"
	ReqGetStatus         RequestType = "GetStatus"
	ReqHealthCheck       RequestType = "HealthCheck"
	ReqShutdown          RequestType = "Shutdown"
)

var knownRequestTypes = map[RequestType]struct{}{
	ReqAddWatchTarget:    {},
	ReqRemoveWatchTarget: {},
	ReqGetWatchTargets:   {},
	ReqGetRecordedEvents: {},
	ReqClearEvents:       {},
	ReqGetStatus:         {},
	ReqHealthCheck:       {},
	ReqShutdown:          {},
}

// Request is the envelope every inbound frame decodes into. Fields outside
// the addressed RequestType are simply left zero-valued.
type Request struct {
	RequestType RequestType `json:"RequestType"`
	ProcessID   uint32      `json:"ProcessId,omitempty"`
	TagName     string      `json:"TagName,omitempty"`
	MaxCount    int         `json:"MaxCount,omitempty"`
}

// Response is the envelope every outbound frame encodes from. Exactly the
// fields relevant to the originating RequestType are populated.
type Response struct {
	Success      bool   `json:"Success"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`

	WatchTargets []WatchTargetInfo `json:"WatchTargets,omitempty"`
	Events       []*event.Event    `json:"Events,omitempty"`

	IsRunning             bool    `json:"IsRunning,omitempty"`
	IsEtwMonitoring       bool    `json:"IsEtwMonitoring,omitempty"`
	IsPipeServerRunning   bool    `json:"IsPipeServerRunning,omitempty"`
	ActiveWatchTargets    int     `json:"ActiveWatchTargets,omitempty"`
	TotalTags             int     `json:"TotalTags,omitempty"`
	TotalEvents           int     `json:"TotalEvents,omitempty"`
	EstimatedMemoryUsageMB float64 `json:"EstimatedMemoryUsageMB,omitempty"`

	Status string `json:"Status,omitempty"`
}

// WatchTargetInfo is one row of a GetWatchTargets response.
type WatchTargetInfo struct {
	ProcessID      uint32    `json:"ProcessId"`
	ProcessName    string    `json:"ProcessName"`
	ExecutablePath string    `json:"ExecutablePath"`
	StartTime      time.Time `json:"StartTime"`
	TagName        string    `json:"TagName"`
}

// errorResponse builds a failure envelope; the message is always a single
// line, never a stack trace, per spec.md §7's user-visible behavior rule.
func errorResponse(msg string) *Response {
	return &Response{Success: false, ErrorMessage: msg}
}

func okResponse() *Response {
	return &Response{Success: true}
}
