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

// Package ingest implements the Kernel Event Source (C1): it owns a
// single real-time ETW session with the FileIO and Process kernel
// providers enabled, turns each delivered EVENT_RECORD into an
// event.Raw, and hands it to the Event Normalizer. Structurally this is
// the teacher's kstream consumer cut down to the two providers ProcTail
// cares about and the sequencing/processors/capture machinery it
// doesn't need.
package ingest

import (
	"errors"
	"expvar"
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	perrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/event"
	"github.com/rabbitstack/proctail/pkg/zsyscall/etw"

	log "github.com/sirupsen/logrus"
)

const callbackNext = uintptr(1)

var (
	failedEvents    = expvar.NewMap("ingest.kevents.failures")
	eventsEnqueued  = expvar.NewInt("ingest.kevents.enqueued")
	buffersRead     = expvar.NewInt("ingest.kbuffers.read")
	decodeDiscarded = expvar.NewInt("ingest.kevents.undecodable")
)

// loggerName is the NT kernel logger session name. ETW enforces at most
// one active session under a given name system-wide, which is what
// backs the Source's at-most-one-running-session invariant: a second
// StartTrace call under the same name fails with ERROR_ALREADY_EXISTS.
const loggerName = "ProcTail-Kernel-Logger"

// Sink receives each decoded raw kernel event. pkg/normalize.Normalizer
// satisfies this.
type Sink interface {
	Process(r *event.Raw)
}

// Source is the concrete Kernel Event Source (C1). It owns the
// lifecycle of a single real-time ETW session and feeds every delivered
// record to a Sink.
type Source struct {
	mu     sync.Mutex
	handle etw.TraceHandle
	props  *etw.EventTraceProperties
	sink   Sink
	errs   chan error
	faulted bool
	running bool
}

// NewSource constructs a Source that forwards decoded events to sink.
func NewSource(sink Sink) *Source {
	return &Source{sink: sink, errs: make(chan error, 64)}
}

// sourceInstance lets the event-record callback — which C can only call
// back into via a package-level function pointer, not a bound method
// value with a stable identity across calls — reach the owning Source.
// ETW only ever drives one real-time session for this process, so a
// single package-level slot is sufficient; a second concurrent Start
// is rejected before it would overwrite it.
var (
	instanceMu sync.Mutex
	instance   *Source
)

// Start opens the kernel logger session, enables the FileIO and Process
// providers on it, and begins pumping records to the sink on a
// background goroutine. Start is idempotent: calling it while already
// running is a no-op that returns nil. Returns perrors.ErrAlreadyRunning
// when another Source or session already holds the logger name, and
// perrors.ErrPermissionDenied when StartTrace fails for lack of the
// SeSystemProfilePrivilege/administrator rights a kernel logger session
// requires.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	instanceMu.Lock()
	if instance != nil {
		instanceMu.Unlock()
		return perrors.ErrAlreadyRunning
	}
	instance = s
	instanceMu.Unlock()

	props := newTraceProperties()
	handle, err := etw.StartTrace(loggerName, props)
	if err != nil {
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			return fmt.Errorf("%w: kernel logger session requires administrator privileges", perrors.ErrPermissionDenied)
		}
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return perrors.ErrAlreadyRunning
		}
		return fmt.Errorf("starting kernel logger session: %w", err)
	}
	s.props = props

	if err := enableProvider(handle, etw.FileIOProviderGUID); err != nil {
		_ = etw.ControlTrace(handle, loggerName, props, etw.EvtTraceControlStop)
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		return fmt.Errorf("enabling FileIO provider: %w", err)
	}
	if err := enableProvider(handle, etw.ProcessProviderGUID); err != nil {
		_ = etw.ControlTrace(handle, loggerName, props, etw.EvtTraceControlStop)
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		return fmt.Errorf("enabling Process provider: %w", err)
	}

	if err := s.openTrace(); err != nil {
		_ = etw.ControlTrace(handle, loggerName, props, etw.EvtTraceControlStop)
		instanceMu.Lock()
		instance = nil
		instanceMu.Unlock()
		return fmt.Errorf("opening trace for consumption: %w", err)
	}

	s.running = true
	s.faulted = false
	return nil
}

func (s *Source) openTrace() error {
	logfile := etw.EventTraceLogfile{
		LoggerName: windows.StringToUTF16Ptr(loggerName),
	}
	modes := uint32(etw.ProcessTraceModeRealtime | etw.ProcessTraceModeEventRecord)
	cb := syscall.NewCallback(processEventCallback)
	bufCb := syscall.NewCallback(bufferStatsCallback)
	*(*uint32)(unsafe.Pointer(&logfile.LogFileMode[0])) = modes
	*(*uintptr)(unsafe.Pointer(&logfile.EventCallback[0])) = cb
	logfile.BufferCallback = bufCb

	traceHandle := etw.OpenTrace(logfile)
	if !traceHandle.IsValid() {
		return fmt.Errorf("invalid trace handle: %v", windows.GetLastError())
	}
	s.handle = traceHandle

	go func() {
		log.Infof("starting kernel trace processing for [%s]", loggerName)
		err := etw.ProcessTrace(traceHandle)
		log.Infof("kernel trace processing stopped for [%s]", loggerName)
		s.mu.Lock()
		wasRunning := s.running
		s.mu.Unlock()
		if err != nil && wasRunning {
			// ProcessTrace returning while the session is still marked
			// running (i.e. this wasn't triggered by our own Stop) is a
			// fault: the session died out from under us.
			s.mu.Lock()
			s.faulted = true
			s.running = false
			s.mu.Unlock()
			select {
			case s.errs <- err:
			default:
			}
		}
	}()
	return nil
}

// Stop closes the trace session and returns without waiting for the
// processing goroutine to unwind; records still in flight when Stop
// returns are dropped by processEventCallback once the instance slot is
// cleared. Stop on an already-stopped Source is a no-op, matching the
// teacher's idempotent CloseKstream.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.handle.IsValid() {
		if err := etw.CloseTrace(s.handle); err != nil {
			log.Warnf("error closing trace: %v", err)
		}
	}
	if s.props != nil {
		if err := etw.ControlTrace(s.handle, loggerName, s.props, etw.EvtTraceControlStop); err != nil {
			log.Warnf("error stopping kernel logger session: %v", err)
		}
	}

	s.running = false

	instanceMu.Lock()
	if instance == s {
		instance = nil
	}
	instanceMu.Unlock()

	return nil
}

// IsRunning reports whether the session is currently active.
func (s *Source) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsFaulted reports whether the session terminated unexpectedly since
// the last successful Start, the condition the orchestrator surfaces
// through GetStatus/HealthCheck.
func (s *Source) IsFaulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

// Errors returns the channel onto which session-fatal errors are
// delivered after ProcessTrace returns unexpectedly.
func (s *Source) Errors() chan error { return s.errs }

func enableProvider(handle etw.TraceHandle, providerGUID windows.GUID) error {
	const levelVerbose = 5
	return etw.EnableTraceEx2(handle, providerGUID, etw.EventControlCodeEnableProvider, levelVerbose, 0, 0)
}

func newTraceProperties() *etw.EventTraceProperties {
	var props etw.EventTraceProperties
	props.Wnode.BufferSize = uint32(unsafe.Sizeof(props))
	props.Wnode.Flags = 0x00020000 // WNODE_FLAG_TRACED_GUID
	props.LogFileMode = etw.EventTraceRealTimeMode
	props.BufferSize = 64
	props.MinimumBuffers = 4
	props.MaximumBuffers = 32
	props.LoggerNameOffset = uint32(unsafe.Sizeof(props))
	return &props
}

func bufferStatsCallback(logfile *etw.EventTraceLogfile) uintptr {
	buffersRead.Add(int64(logfile.BuffersRead))
	return callbackNext
}

// processEventCallback is the EVENT_RECORD_CALLBACK trampoline. It must
// be a free function — syscall.NewCallback requires a func value with
// no closed-over state — so it reaches the active Source through the
// package-level instance slot.
func processEventCallback(rec *etw.EventRecord) uintptr {
	instanceMu.Lock()
	s := instance
	instanceMu.Unlock()
	if s == nil {
		return callbackNext
	}
	if err := s.processEvent(rec); err != nil {
		failedEvents.Add(err.Error(), 1)
	}
	return callbackNext
}

func (s *Source) processEvent(rec *etw.EventRecord) error {
	raw, ok := decodeRecord(rec)
	if !ok {
		decodeDiscarded.Add(1)
		return nil
	}
	eventsEnqueued.Add(1)
	s.sink.Process(raw)
	return nil
}

// decodeRecord turns a raw EVENT_RECORD into an event.Raw. It recognizes
// only the FileIO and Process provider/opcode combinations ProcTail
// enables; everything else is reported as not-ok so the caller can
// count it as undecodable rather than forwarding a record with an
// unparsed payload.
func decodeRecord(rec *etw.EventRecord) (*event.Raw, bool) {
	hdr := rec.EventHeader
	kind, ok := etw.KindName(hdr.ProviderId, hdr.EventDescriptor.Opcode)
	if !ok {
		return nil, false
	}
	provider := etw.ProviderName(hdr.ProviderId)

	raw := &event.Raw{
		Provider: provider,
		Kind:     kind,
		PID:      hdr.ProcessId,
		TID:      hdr.ThreadId,
		Params:   map[string]interface{}{},
	}
	if hdr.ActivityId != (windows.GUID{}) {
		raw.ActivityID = guidToString(hdr.ActivityId)
	}
	related := rec.RelatedActivityID()
	if related != (windows.GUID{}) {
		raw.RelatedActivityID = guidToString(related)
	}

	switch provider {
	case etw.FileIOProviderName:
		decodeFileIOParams(rec, raw)
	case etw.ProcessProviderName:
		decodeProcessParams(rec, raw)
	}
	return raw, true
}

// decodeFileIOParams extracts the file path from the event's user data.
// The classic FileIo MOF layout places a fixed header (file object,
// irp/ttid pointers — sizes below) ahead of a NUL-terminated UTF-16
// file name occupying the remainder of the buffer; ProcTail only needs
// the name.
func decodeFileIOParams(rec *etw.EventRecord, raw *event.Raw) {
	const fixedHeaderBytes = 24 // FileObject + (Irp|TTID) + depends-on-opcode extra pointer-sized fields, conservative lower bound
	if rec.UserData == 0 || rec.UserDataLength <= fixedHeaderBytes {
		return
	}
	nameLen := int(rec.UserDataLength) - fixedHeaderBytes
	nameOffset := rec.UserData + uintptr(fixedHeaderBytes)
	name := utf16StringAt(nameOffset, nameLen)
	if name != "" {
		raw.Params["FileName"] = name
	}
}

// decodeProcessParams extracts the new process id, parent pid, image
// name, and exit status from a classic Process MOF event. The fixed
// header carries UniqueProcessKey, ProcessId, ParentId, SessionId and
// ExitStatus as 32-bit fields before a variable-length image file name.
func decodeProcessParams(rec *etw.EventRecord, raw *event.Raw) {
	if rec.UserData == 0 || rec.UserDataLength < 20 {
		return
	}
	base := rec.UserData
	pid := *(*uint32)(unsafe.Pointer(base + 8))
	parentPid := *(*uint32)(unsafe.Pointer(base + 12))
	exitStatus := *(*uint32)(unsafe.Pointer(base + 16))

	raw.Params["ProcessId"] = pid
	raw.Params["ParentProcessId"] = parentPid
	raw.Params["ExitCode"] = exitStatus

	const fixedHeaderBytes = 20
	if int(rec.UserDataLength) > fixedHeaderBytes {
		nameLen := int(rec.UserDataLength) - fixedHeaderBytes
		name := utf16StringAt(base+fixedHeaderBytes, nameLen)
		if name != "" {
			raw.Params["ImageName"] = name
		}
	}
}

func utf16StringAt(addr uintptr, byteLen int) string {
	if byteLen <= 1 {
		return ""
	}
	u16Len := byteLen / 2
	slice := unsafe.Slice((*uint16)(unsafe.Pointer(addr)), u16Len)
	for i, c := range slice {
		if c == 0 {
			slice = slice[:i]
			break
		}
	}
	return windows.UTF16ToString(slice)
}

func guidToString(g windows.GUID) string {
	return fmt.Sprintf("%08X-%04X-%04X-%04X-%012X",
		g.Data1, g.Data2, g.Data3, g.Data4[:2], g.Data4[2:])
}
