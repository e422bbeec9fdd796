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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{RequestType: ReqGetStatus}

	require.NoError(t, writeFrame(&buf, req))

	payload, err := readFrame(&buf, maxFrameBytes)
	require.NoError(t, err)

	got, err := decodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, ReqGetStatus, got.RequestType)
}

func TestReadFrameRejectsOversizeDeclaredLength(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 100)
	buf.Write(lenBuf[:])

	_, err := readFrame(&buf, 10)
	require.Error(t, err)
}

func TestReadFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 0)
	buf.Write(lenBuf[:])

	payload, err := readFrame(&buf, maxFrameBytes)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestReadFrameShortReadIsError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x01, 0x00})

	_, err := readFrame(&buf, maxFrameBytes)
	require.Error(t, err)
}
