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
	"expvar"

	"github.com/google/uuid"

	"github.com/rabbitstack/proctail/pkg/event"
)

var (
	discardedNoTag = expvar.NewInt("normalize.discarded.no_tag")
	classifiedFile = expvar.NewInt("normalize.classified.file")
	classifiedProc = expvar.NewInt("normalize.classified.process")
	classifiedGen  = expvar.NewInt("normalize.classified.generic")
)

// Registry is the subset of the Watch Registry the normalizer depends on.
// The normalizer is constructed with this capability, not a reference to
// the whole registry value, so it can't reach for operations outside its
// contract (AddWatchTarget/RemoveWatchTarget stay an IPC-router-only
// concern) — see the teacher's capability-injection design note.
type Registry interface {
	TagsFor(pid uint32) []string
	Propagate(parentPID, childPID uint32)
	Remove(pid uint32) int
}

// Sink is the subset of the Event Store the normalizer writes into.
type Sink interface {
	Append(tag string, e *event.Event)
}

// Normalizer is the concrete Event Normalizer (C2).
type Normalizer struct {
	registry Registry
	sink     Sink
	chain    []classifier
}

// New constructs a Normalizer that attributes events via registry and
// stores them via sink.
func New(registry Registry, sink Sink) *Normalizer {
	return &Normalizer{registry: registry, sink: sink, chain: defaultChain()}
}

// Process classifies a raw event, attributes it to every tag currently
// watching its originator, applies the registry side effects the
// classification implies, and stores a per-tag copy. It never returns an
// error: classification always succeeds (the catch-all guarantees that),
// and a pid with no active watch entry is a normal discard, not a failure.
func (n *Normalizer) Process(r *event.Raw) {
	ev := n.classify(r)

	ev.Timestamp = r.Timestamp
	ev.PID = r.PID
	ev.TID = r.TID
	ev.Provider = r.Provider
	ev.EventName = r.Kind
	ev.ActivityID = orGenerated(r.ActivityID)
	ev.RelatedActivityID = r.RelatedActivityID
	ev.Payload = r.Params

	switch ev.Kind {
	case event.KindFile:
		classifiedFile.Add(1)
	case event.KindProcessStart:
		classifiedProc.Add(1)
		// Ordering guarantee (spec.md §4.2, §5): propagate must become
		// visible to TagsFor before any subsequent event from the child
		// can be classified. Both happen synchronously on this single
		// ingest-domain call, so there is no window for a race.
		n.registry.Propagate(r.PID, ev.ChildPID)
	case event.KindProcessEnd:
		classifiedProc.Add(1)
	default:
		classifiedGen.Add(1)
	}

	tags := n.registry.TagsFor(r.PID)
	if len(tags) == 0 {
		discardedNoTag.Add(1)
	}
	for _, tag := range tags {
		n.sink.Append(tag, ev.WithTag(tag))
	}

	if ev.Kind == event.KindProcessEnd {
		// Emit first (above), then reclaim: this ordering is what makes
		// the end event land in the right tag ring before tags_for(pid)
		// goes empty.
		n.registry.Remove(r.PID)
	}
}

func (n *Normalizer) classify(r *event.Raw) *event.Event {
	for _, c := range n.chain {
		if ev, ok := c.classify(r); ok {
			return ev
		}
	}
	// unreachable: genericClassifier always matches
	return &event.Event{Kind: event.KindGeneric}
}

func orGenerated(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}
