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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rabbitstack/proctail/pkg/event"
)

func TestFileClassifierClaimsKnownOp(t *testing.T) {
	r := &event.Raw{
		Provider: fileProvider,
		Kind:     "Write",
		Params:   map[string]interface{}{payloadFileName: `C:\foo.txt`},
	}
	ev, ok := fileClassifier{}.classify(r)
	require.True(t, ok)
	assert.Equal(t, event.KindFile, ev.Kind)
	assert.Equal(t, event.FileOpWrite, ev.FileOp)
	assert.Equal(t, `C:\foo.txt`, ev.FilePath)
}

func TestFileClassifierDeclinesWithoutFileName(t *testing.T) {
	r := &event.Raw{Provider: fileProvider, Kind: "Write"}
	_, ok := fileClassifier{}.classify(r)
	assert.False(t, ok)
}

func TestFileClassifierDeclinesUnknownOp(t *testing.T) {
	r := &event.Raw{
		Provider: fileProvider,
		Kind:     "Cleanup",
		Params:   map[string]interface{}{payloadFileName: `C:\foo.txt`},
	}
	_, ok := fileClassifier{}.classify(r)
	assert.False(t, ok)
}

func TestFileClassifierDeclinesOtherProvider(t *testing.T) {
	r := &event.Raw{Provider: processProvider, Kind: "Write"}
	_, ok := fileClassifier{}.classify(r)
	assert.False(t, ok)
}

func TestProcessClassifierStart(t *testing.T) {
	r := &event.Raw{
		Provider: processProvider,
		Kind:     kindProcessStart,
		Params: map[string]interface{}{
			payloadChildPID:  uint32(555),
			payloadImageName: `C:\child.exe`,
		},
	}
	ev, ok := processClassifier{}.classify(r)
	require.True(t, ok)
	assert.Equal(t, event.KindProcessStart, ev.Kind)
	assert.Equal(t, uint32(555), ev.ChildPID)
	assert.Equal(t, `C:\child.exe`, ev.ChildImageName)
}

func TestProcessClassifierEndCoercesExitCode(t *testing.T) {
	cases := []interface{}{uint32(7), int(7), int64(7), float64(7)}
	for _, exit := range cases {
		r := &event.Raw{
			Provider: processProvider,
			Kind:     kindProcessEnd,
			Params:   map[string]interface{}{payloadExitCode: exit},
		}
		ev, ok := processClassifier{}.classify(r)
		require.True(t, ok)
		assert.Equal(t, event.KindProcessEnd, ev.Kind)
		assert.Equal(t, uint32(7), ev.ExitCode)
	}
}

func TestProcessClassifierEndDefaultsExitCode(t *testing.T) {
	r := &event.Raw{Provider: processProvider, Kind: kindProcessEnd}
	ev, ok := processClassifier{}.classify(r)
	require.True(t, ok)
	assert.Equal(t, uint32(0), ev.ExitCode)
}

func TestProcessClassifierDeclinesUnknownKind(t *testing.T) {
	r := &event.Raw{Provider: processProvider, Kind: "Load"}
	_, ok := processClassifier{}.classify(r)
	assert.False(t, ok)
}

func TestGenericClassifierAlwaysClaims(t *testing.T) {
	ev, ok := genericClassifier{}.classify(&event.Raw{})
	require.True(t, ok)
	assert.Equal(t, event.KindGeneric, ev.Kind)
}
