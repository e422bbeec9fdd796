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

import (
	"sync"

	"github.com/rabbitstack/proctail/pkg/event"
)

// Sink receives each decoded raw kernel event. Declared again here
// (identical to the Windows build's Sink) because the two files never
// compile together.
type Sink interface {
	Process(r *event.Raw)
}

// StubSource satisfies kernelSource on platforms with no ETW. Start
// always succeeds and immediately reports itself running; no events are
// ever produced. A test can call Fault to simulate a session failure. It
// exists purely so the rest of the component graph is testable off
// Windows.
type StubSource struct {
	mu      sync.Mutex
	running bool
	faulted bool
	errs    chan error
}

// NewStubSource constructs a StubSource. sink is accepted for signature
// parity with the Windows NewSource but is neither retained nor invoked.
func NewStubSource(_ Sink) *StubSource {
	return &StubSource{errs: make(chan error, 1)}
}

func (s *StubSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.faulted = false
	return nil
}

func (s *StubSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *StubSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *StubSource) IsFaulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted
}

func (s *StubSource) Errors() chan error { return s.errs }

// Fault simulates an unrequested kernel session death, for orchestrator
// tests that exercise the Faulted state without a real ETW session.
func (s *StubSource) Fault(err error) {
	s.mu.Lock()
	s.faulted = true
	s.running = false
	s.mu.Unlock()
	s.errs <- err
}
