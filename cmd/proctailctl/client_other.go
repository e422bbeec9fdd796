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

package main

import (
	"fmt"

	"github.com/rabbitstack/proctail/pkg/ipc"
)

// call is unavailable off Windows: go-winio's named pipe dialer is a
// Windows syscall wrapper with no cross-platform fallback, and the
// agent itself never runs anywhere else.
func call(ipc.Request) (*ipc.Response, error) {
	return nil, fmt.Errorf("proctailctl requires Windows")
}
