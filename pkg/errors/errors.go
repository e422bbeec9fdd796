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

// Package errors defines the sentinel error taxonomy shared by every
// component of the agent. Handlers convert component-level failures into
// one of these categories before they cross the wire.
package errors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel errors for the categories enumerated in the error handling design.
var (
	// ErrPermissionDenied is returned when the caller lacks the OS privilege
	// required to open a kernel trace session or configure the IPC endpoint's
	// access control.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrAlreadyRunning is returned when a kernel session under the same
	// name already exists and cannot be stolen.
	ErrAlreadyRunning = errors.New("kernel session already running")
	// ErrNotFound is returned for AddWatchTarget on a non-existent pid, or
	// ClearEvents/GetRecordedEvents on an unknown tag.
	ErrNotFound = errors.New("not found")
	// ErrMalformedRequest is returned for unparseable payloads, unknown
	// request types, or oversize messages.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrTimeout is returned when a handler's response deadline elapses.
	ErrTimeout = errors.New("handler deadline exceeded")
	// ErrFaulted marks the kernel event source as having aborted outside
	// of a requested stop.
	ErrFaulted = errors.New("kernel event source faulted")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// MalformedRequestf wraps ErrMalformedRequest with a formatted detail message.
func MalformedRequestf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedRequest, fmt.Sprintf(format, args...))
}

// IsNotFound reports whether err ultimately wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsMalformedRequest reports whether err ultimately wraps ErrMalformedRequest.
func IsMalformedRequest(err error) bool { return errors.Is(err, ErrMalformedRequest) }

// IsTimeout reports whether err ultimately wraps ErrTimeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsPermissionDenied reports whether err ultimately wraps ErrPermissionDenied.
func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

// IsAlreadyRunning reports whether err ultimately wraps ErrAlreadyRunning.
func IsAlreadyRunning(err error) bool { return errors.Is(err, ErrAlreadyRunning) }

// Fatal wraps err with a stack trace for the startup failure path, where
// the process is about to exit with a non-zero code and operators need the
// call site, not just the message.
func Fatal(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}
