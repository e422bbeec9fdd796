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

package event

import "time"

// Kind discriminates the variants of a Normalized event. It doubles as the
// wire discriminator field, so dispatch everywhere — normalizer, store,
// IPC serialization — is a plain switch on this string, never a type
// assertion or virtual call.
type Kind string

const (
	// KindFile is a file lifecycle event: create, write, delete, rename,
	// or metadata change.
	KindFile Kind = "file"
	// KindProcessStart is a process birth event.
	KindProcessStart Kind = "process_start"
	// KindProcessEnd is a process termination event.
	KindProcessEnd Kind = "process_end"
	// KindGeneric carries a kernel event outside the primary vocabulary,
	// untouched aside from tag attribution.
	KindGeneric Kind = "generic"
)

// FileOp discriminates the file-event sub-kind.
type FileOp string

const (
	FileOpCreate  FileOp = "Create"
	FileOpWrite   FileOp = "Write"
	FileOpDelete  FileOp = "Delete"
	FileOpRename  FileOp = "Rename"
	FileOpSetInfo FileOp = "SetInfo"
)

// fileOps is the set of event kinds the normalizer classifies as file
// events; anything else under the file provider falls through to Generic.
var fileOps = map[string]FileOp{
	"Create":  FileOpCreate,
	"Write":   FileOpWrite,
	"Delete":  FileOpDelete,
	"Rename":  FileOpRename,
	"SetInfo": FileOpSetInfo,
}

// FileOpFor resolves a raw event kind name to a FileOp, reporting false if
// the kind name isn't one of the five enumerated file operations.
func FileOpFor(kindName string) (FileOp, bool) {
	op, ok := fileOps[kindName]
	return op, ok
}

// Event is the durable, wire-serializable unit retained in tag rings. It is
// a tagged sum type over Kind: only the fields relevant to that Kind are
// populated, but all variants share the Common block below.
type Event struct {
	// Common fields, present on every variant.
	Timestamp         time.Time              `json:"Timestamp"`
	Tag               string                 `json:"TagName"`
	PID               uint32                 `json:"ProcessId"`
	TID               uint32                 `json:"ThreadId"`
	Provider          string                 `json:"ProviderName"`
	EventName         string                 `json:"EventName"`
	ActivityID        string                 `json:"ActivityId"`
	RelatedActivityID string                 `json:"RelatedActivityId"`
	Payload           map[string]interface{} `json:"Payload"`

	Kind Kind `json:"Kind"`

	// File event fields (Kind == KindFile).
	FilePath string `json:"FilePath,omitempty"`
	FileOp   FileOp `json:"FileOperation,omitempty"`

	// Process start fields (Kind == KindProcessStart).
	ChildPID       uint32 `json:"ChildProcessId,omitempty"`
	ChildImageName string `json:"ChildProcessName,omitempty"`

	// Process end fields (Kind == KindProcessEnd).
	ExitCode uint32 `json:"ExitCode,omitempty"`
}

// IsFile reports whether e is a file lifecycle event.
func (e *Event) IsFile() bool { return e.Kind == KindFile }

// IsProcessStart reports whether e is a process birth event.
func (e *Event) IsProcessStart() bool { return e.Kind == KindProcessStart }

// IsProcessEnd reports whether e is a process termination event.
func (e *Event) IsProcessEnd() bool { return e.Kind == KindProcessEnd }

// WithTag returns a shallow copy of e scoped to tag. The Payload map is
// shared, not duplicated — it's read-only from the moment the normalizer
// constructs it, so copying it per tag would only waste memory.
func (e *Event) WithTag(tag string) *Event {
	cp := *e
	cp.Tag = tag
	return &cp
}
