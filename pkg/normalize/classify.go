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

// Package normalize implements the Event Normalizer (C2): it maps
// (provider, event kind) pairs to the Normalized event vocabulary, then
// consults the Watch Registry to attribute each event to the tags that
// apply to its originating pid.
//
// Classification is organized as a short chain of classifiers, the same
// pattern the teacher uses for its kstream processor chain: each
// classifier either claims the raw event and returns a partially-built
// Normalized event, or declines and lets the next classifier in the chain
// try. A catch-all classifier at the end of the chain guarantees every raw
// event becomes some Normalized variant.
package normalize

import (
	"github.com/rabbitstack/proctail/pkg/event"
)

const (
	fileProvider    = "Microsoft-Windows-Kernel-FileIO"
	processProvider = "Microsoft-Windows-Kernel-Process"

	kindProcessStart = "Start"
	kindProcessEnd   = "End"

	// payloadFileName is the payload field name file events carry their
	// absolute path under. If it's absent, the event falls through to
	// Generic rather than being classified as a file event with an empty
	// path.
	payloadFileName = "FileName"
	// payloadChildPID is the payload field naming the *new* process id on
	// a process-start event — distinct from the raw event's own PID, which
	// is the originator (typically the parent, sometimes the process
	// manager that issued CreateProcess on its behalf).
	payloadChildPID     = "ProcessId"
	payloadImageName    = "ImageName"
	payloadExitCode     = "ExitCode"
)

// classifier claims a raw event or declines it.
type classifier interface {
	// classify attempts to produce a Normalized event from r. ok is false
	// if this classifier doesn't handle r's (provider, kind) pair.
	classify(r *event.Raw) (ev *event.Event, ok bool)
}

// fileClassifier recognizes the five enumerated file operations on the
// file-I/O kernel provider.
type fileClassifier struct{}

func (fileClassifier) classify(r *event.Raw) (*event.Event, bool) {
	if r.Provider != fileProvider {
		return nil, false
	}
	op, ok := event.FileOpFor(r.Kind)
	if !ok {
		return nil, false
	}
	path := r.StringParam(payloadFileName)
	if path == "" {
		// Absent path: classify as Generic rather than a FileEvent with an
		// empty path, per spec.
		return nil, false
	}
	return &event.Event{
		Kind:     event.KindFile,
		FilePath: path,
		FileOp:   op,
	}, true
}

// processClassifier recognizes process start/end on the process kernel
// provider.
type processClassifier struct{}

func (processClassifier) classify(r *event.Raw) (*event.Event, bool) {
	if r.Provider != processProvider {
		return nil, false
	}
	switch r.Kind {
	case kindProcessStart:
		return &event.Event{
			Kind:           event.KindProcessStart,
			ChildPID:       r.Uint32Param(payloadChildPID),
			ChildImageName: r.StringParam(payloadImageName),
		}, true
	case kindProcessEnd:
		exitCode, ok := r.Param(payloadExitCode)
		if !ok {
			exitCode = uint32(0)
		}
		ev := &event.Event{Kind: event.KindProcessEnd}
		switch n := exitCode.(type) {
		case uint32:
			ev.ExitCode = n
		case int:
			ev.ExitCode = uint32(n)
		case int64:
			ev.ExitCode = uint32(n)
		case float64:
			ev.ExitCode = uint32(n)
		}
		return ev, true
	default:
		return nil, false
	}
}

// genericClassifier is the catch-all: every raw event outside the primary
// vocabulary still becomes a Normalized event, carrying its payload
// untouched.
type genericClassifier struct{}

func (genericClassifier) classify(*event.Raw) (*event.Event, bool) {
	return &event.Event{Kind: event.KindGeneric}, true
}

// defaultChain is the classification order: file and process classifiers
// first since they can fall through to Generic, then the catch-all.
func defaultChain() []classifier {
	return []classifier{
		fileClassifier{},
		processClassifier{},
		genericClassifier{},
	}
}
