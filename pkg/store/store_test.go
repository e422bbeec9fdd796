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

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabbitstack/proctail/pkg/event"
)

func TestReadUnknownTagIsNotFound(t *testing.T) {
	s := New(10)
	_, err := s.Read("missing", -1)
	require.Error(t, err)
}

func TestAppendIntoUnknownTagIsNoop(t *testing.T) {
	s := New(10)
	s.Append("missing", &event.Event{Kind: event.KindGeneric})
	assert.Equal(t, 0, s.Stats().TotalEvents)
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	s := New(2)
	s.EnsureTag("t1")
	s.Append("t1", &event.Event{EventName: "a"})
	s.Append("t1", &event.Event{EventName: "b"})
	s.Append("t1", &event.Event{EventName: "c"})

	got, err := s.Read("t1", -1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].EventName)
	assert.Equal(t, "c", got[1].EventName)
}

func TestReadRespectsMaxCount(t *testing.T) {
	s := New(10)
	s.EnsureTag("t1")
	for i := 0; i < 5; i++ {
		s.Append("t1", &event.Event{EventName: "e"})
	}
	got, err := s.Read("t1", 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestClearEmptiesRingButKeepsTag(t *testing.T) {
	s := New(10)
	s.EnsureTag("t1")
	s.Append("t1", &event.Event{})

	require.NoError(t, s.Clear("t1"))

	got, err := s.Read("t1", -1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStatsAggregatesAcrossTags(t *testing.T) {
	s := New(10)
	s.EnsureTag("t1")
	s.EnsureTag("t2")
	s.Append("t1", &event.Event{})
	s.Append("t2", &event.Event{})
	s.Append("t2", &event.Event{})

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalTags)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 1, stats.PerTagCount["t1"])
	assert.Equal(t, 2, stats.PerTagCount["t2"])
}

func TestEnsureTagIsIdempotent(t *testing.T) {
	s := New(10)
	s.EnsureTag("t1")
	s.Append("t1", &event.Event{EventName: "a"})
	s.EnsureTag("t1")

	got, err := s.Read("t1", -1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
