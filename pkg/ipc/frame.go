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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
)

// maxFrameBytes is the hard ceiling on an accepted payload; exceeding it
// closes the connection without a response.
const maxFrameBytes = 10 * 1024 * 1024

var framePool bytebufferpool.Pool

// readFrame reads one length-prefixed message from r: a little-endian u32
// length followed by exactly that many payload bytes. Returns
// ErrMalformedRequest if the declared length exceeds limit.
func readFrame(r io.Reader, limit uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > limit {
		return nil, kerrors.MalformedRequestf("frame of %d bytes exceeds the %d byte limit", n, limit)
	}

	buf := framePool.Get()
	defer framePool.Put(buf)
	buf.Set(nil)

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// writeFrame writes v as a length-prefixed JSON payload to w.
func writeFrame(w io.Writer, v interface{}) error {
	buf := framePool.Get()
	defer framePool.Put(buf)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("response of %d bytes exceeds frame limit", len(payload))
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	buf.Write(lenBuf[:])
	buf.Write(payload)

	_, err = w.Write(buf.B)
	return err
}
