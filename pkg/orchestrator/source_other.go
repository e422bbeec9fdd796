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

package orchestrator

import "github.com/rabbitstack/proctail/pkg/ingest"

// newPlatformSource returns a stub kernel event source on non-Windows
// hosts, where there is no ETW to consume. ProcTail is a Windows-only
// agent; this exists so the orchestrator, registry, store, and ipc
// packages — none of which are Windows-specific themselves — can be
// unit tested on any host.
func newPlatformSource(sink ingest.Sink) kernelSource {
	return ingest.NewStubSource(sink)
}
