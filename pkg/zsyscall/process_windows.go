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

package zsyscall

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// InvalidProcessPid marks a watch entry whose parent pid couldn't be
// resolved, mirroring the teacher's sentinel of the same name.
const InvalidProcessPid = ^uint32(0)

var (
	modkernel32      = windows.NewLazySystemDLL("kernel32.dll")
	modntdll         = windows.NewLazySystemDLL("ntdll.dll")
	procCreateThread = modkernel32.NewProc("CreateThread")
	procNtQueryInfo  = modntdll.NewProc("NtQueryInformationProcess")
)

// CreateThread wraps kernel32!CreateThread. golang.org/x/sys/windows
// doesn't expose it directly since the Go runtime manages its own OS
// threads; the deadlock-avoidant query helper needs a raw native thread
// it fully controls, including the ability to terminate it.
func CreateThread(sa *windows.SecurityAttributes, stackSize uint32, startAddr uintptr, param uintptr, flags uint32, threadID *uint32) windows.Handle {
	r, _, _ := procCreateThread.Call(
		uintptr(unsafe.Pointer(sa)),
		uintptr(stackSize),
		startAddr,
		param,
		uintptr(flags),
		uintptr(unsafe.Pointer(threadID)),
	)
	return windows.Handle(r)
}

// IsProcessRunning reports whether a process handle still refers to a live
// process, used by the Watch Registry's dead-process reaper.
func IsProcessRunning(h windows.Handle) bool {
	var exitCode uint32
	if err := windows.GetExitCodeProcess(h, &exitCode); err != nil {
		return false
	}
	const stillActive = 259
	return exitCode == stillActive
}

// ProcessBasicInformation mirrors PROCESS_BASIC_INFORMATION for the subset
// of fields ProcTail consults (parent pid).
type ProcessBasicInformation struct {
	ExitStatus                   uintptr
	PebBaseAddress                uintptr
	AffinityMask                  uintptr
	BasePriority                  uintptr
	UniqueProcessID                uintptr
	InheritedFromUniqueProcessID   uintptr
}

// QueryProcessBasicInformation calls NtQueryInformationProcess with
// ProcessBasicInformation (class 0) to recover a process's parent pid when
// the kernel event didn't carry one (e.g. a process discovered only
// through an OpenProcess event).
func QueryProcessBasicInformation(h windows.Handle) (ProcessBasicInformation, error) {
	var info ProcessBasicInformation
	var retLen uint32
	r, _, _ := procNtQueryInfo.Call(
		uintptr(h),
		0,
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Sizeof(info)),
		uintptr(unsafe.Pointer(&retLen)),
	)
	if r != 0 {
		return info, windows.Errno(r)
	}
	return info, nil
}
