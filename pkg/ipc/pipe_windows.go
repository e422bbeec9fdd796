//go:build windows
// +build windows

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
	"net"

	"github.com/Microsoft/go-winio"
)

// securityDescriptor admits only locally authenticated callers: generic
// all access for the Authenticated Users well-known SID, nothing for
// anyone else. Named pipes are local-only transport already — this SDDL
// additionally keeps unauthenticated/anonymous local callers out.
const securityDescriptor = "D:P(A;;GA;;;AU)"

// pipePath returns the named pipe path for a bare pipe name.
func pipePath(name string) string {
	return `\\.\pipe\` + name
}

// listen opens the real named-pipe endpoint.
func listen(opts Options) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(opts.BufferSize),
		OutputBufferSize:   int32(opts.BufferSize),
	}
	return winio.ListenPipe(pipePath(opts.PipeName), cfg)
}
