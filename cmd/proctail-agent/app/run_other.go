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

package app

import (
	"github.com/rabbitstack/proctail/pkg/ingest"
	"github.com/rabbitstack/proctail/pkg/registry"
)

// checkAdministrator is a no-op off Windows, where there is no kernel
// logger session to elevate for. The stub kernel event source never
// actually opens one, so there's nothing to gate.
func checkAdministrator() error {
	return nil
}

func newProber() registry.ProcessProber {
	return ingest.NewStubProber()
}
