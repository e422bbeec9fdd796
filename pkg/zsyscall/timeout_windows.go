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
	"errors"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

var (
	waitTimeoutCounts = expvar.NewInt("zsyscall.query.wait_timeouts")

	queryMu   sync.Mutex
	queryInit windows.Handle
	queryDone windows.Handle
	thread    windows.Handle

	targetHandle atomic.Value
	activeQuery  atomic.Value // func(windows.Handle) (string, error)
	queryOutcome atomic.Value // outcome
)

// outcome boxes a query's result so a nil error can be stored in an
// atomic.Value, which otherwise panics on a bare nil interface.
type outcome struct {
	name string
	err  error
}

func init() {
	queryInit, _ = windows.CreateEvent(nil, 0, 0, nil)
	queryDone, _ = windows.CreateEvent(nil, 0, 0, nil)
}

// QueryWithTimeout runs fn(handle) on a dedicated, reusable native thread
// and waits up to timeoutMillis for it to complete. If fn hangs — e.g.
// querying a suspended or compromised process can block indefinitely — the
// query thread is killed and recreated on the next call, instead of
// hanging the caller. This is the teacher's handle-name-resolution timeout
// pattern generalized to any single-handle query: ProcTail uses it for
// best-effort process metadata lookups in the Watch Registry's list()
// enrichment, not for handle names.
func QueryWithTimeout(handle windows.Handle, timeoutMillis uint32, fn func(windows.Handle) (string, error)) (string, error) {
	queryMu.Lock()
	defer queryMu.Unlock()

	if thread == 0 {
		if err := windows.ResetEvent(queryInit); err != nil {
			return "", fmt.Errorf("couldn't reset init event: %v", err)
		}
		if err := windows.ResetEvent(queryDone); err != nil {
			return "", fmt.Errorf("couldn't reset done event: %v", err)
		}
		thread = createQueryThread()
		if thread == 0 {
			return "", fmt.Errorf("cannot create query thread: %v", windows.GetLastError())
		}
	}

	targetHandle.Store(handle)
	activeQuery.Store(fn)

	if err := windows.SetEvent(queryInit); err != nil {
		return "", err
	}
	s, err := windows.WaitForSingleObject(queryDone, timeoutMillis)
	if s == windows.WAIT_OBJECT_0 {
		o, _ := queryOutcome.Load().(outcome)
		return o.name, o.err
	}
	if err == windows.WAIT_TIMEOUT {
		waitTimeoutCounts.Add(1)
		if err := windows.TerminateThread(thread, 0); err != nil {
			return "", fmt.Errorf("unable to terminate timeout thread: %v", err)
		}
		_, _ = windows.WaitForSingleObject(thread, timeoutMillis)
		windows.CloseHandle(thread)
		thread = 0
		return "", errors.New("query timed out")
	}
	return "", nil
}

// CloseTimeout releases the query thread's event and thread handles.
func CloseTimeout() error {
	queryMu.Lock()
	defer queryMu.Unlock()
	if err := windows.CloseHandle(queryInit); err != nil {
		return err
	}
	if err := windows.CloseHandle(queryDone); err != nil {
		return err
	}
	if thread != 0 {
		return windows.CloseHandle(thread)
	}
	return nil
}

func createQueryThread() windows.Handle {
	return CreateThread(nil, 0, windows.NewCallback(queryCallback), 0, 0, nil)
}

func queryCallback(ctx uintptr) uintptr {
	for {
		s, err := windows.WaitForSingleObject(queryInit, windows.INFINITE)
		if err != nil || s != windows.WAIT_OBJECT_0 {
			break
		}
		fn, _ := activeQuery.Load().(func(windows.Handle) (string, error))
		h, _ := targetHandle.Load().(windows.Handle)
		var o outcome
		if fn != nil {
			o.name, o.err = fn(h)
		}
		queryOutcome.Store(o)
		if err := windows.SetEvent(queryDone); err != nil {
			break
		}
	}
	return 0
}
