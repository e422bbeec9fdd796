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

package ingest

import "time"

// StubProber satisfies registry.ProcessProber off Windows, where there's
// no OpenProcess/QueryFullProcessImageName to call. Every pid reports
// alive with no metadata, so the Watch Registry's own logic is still
// exercisable in tests without a real process table.
type StubProber struct{}

// NewStubProber constructs a StubProber.
func NewStubProber() *StubProber { return &StubProber{} }

func (StubProber) IsAlive(uint32) bool { return true }

func (StubProber) Describe(uint32) (name, exePath string, startTime time.Time) {
	return "", "", time.Time{}
}
