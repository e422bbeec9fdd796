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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestValidPayload(t *testing.T) {
	req, err := decodeRequest([]byte(`{"RequestType":"AddWatchTarget","ProcessId":42,"TagName":"t1"}`))
	require.NoError(t, err)
	assert.Equal(t, ReqAddWatchTarget, req.RequestType)
	assert.Equal(t, uint32(42), req.ProcessID)
	assert.Equal(t, "t1", req.TagName)
}

func TestDecodeRequestRejectsInvalidJSON(t *testing.T) {
	_, err := decodeRequest([]byte(`not json`))
	require.Error(t, err)
}

func TestDecodeRequestRejectsMissingRequestType(t *testing.T) {
	_, err := decodeRequest([]byte(`{"TagName":"t1"}`))
	require.Error(t, err)
}

func TestDecodeRequestRejectsWrongFieldType(t *testing.T) {
	_, err := decodeRequest([]byte(`{"RequestType":"AddWatchTarget","ProcessId":"not-a-number"}`))
	require.Error(t, err)
}

func TestDecodeRequestRejectsNegativeProcessID(t *testing.T) {
	_, err := decodeRequest([]byte(`{"RequestType":"AddWatchTarget","ProcessId":-1}`))
	require.Error(t, err)
}

func TestCheckKnownTypeAcceptsAllEightRequests(t *testing.T) {
	for rt := range knownRequestTypes {
		assert.NoError(t, checkKnownType(&Request{RequestType: rt}))
	}
}

func TestCheckKnownTypeRejectsUnknown(t *testing.T) {
	err := checkKnownType(&Request{RequestType: "Bogus"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Unknown request type"))
}
