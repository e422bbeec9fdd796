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

package app

import (
	"golang.org/x/sys/windows"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/ingest"
	"github.com/rabbitstack/proctail/pkg/registry"
)

// checkAdministrator refuses to proceed unless the current process token
// is elevated, since StartTrace on the NT kernel logger requires it.
func checkAdministrator() error {
	token := windows.GetCurrentProcessToken()
	if !token.IsElevated() {
		return kerrors.ErrPermissionDenied
	}
	return nil
}

func newProber() registry.ProcessProber {
	return ingest.NewWindowsProber()
}
