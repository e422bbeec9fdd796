//go:build !windows
// +build !windows

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

import "net"

// listen opens a loopback TCP listener in place of a named pipe. ProcTail
// only ever runs on Windows; this exists solely so Router's accept loop,
// framing, and dispatch are exercisable in tests on any host.
func listen(_ Options) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}
