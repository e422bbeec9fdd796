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

// Package multierror aggregates multiple errors produced while walking a
// processor chain into a single error value.
package multierror

import "strings"

type multiError struct {
	errs []error
}

func (m *multiError) Error() string {
	if len(m.errs) == 1 {
		return m.errs[0].Error()
	}
	sb := strings.Builder{}
	sb.WriteString("multiple errors occurred: ")
	for i, err := range m.errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the wrapped errors to errors.Is/errors.As.
func (m *multiError) Unwrap() []error { return m.errs }

// Wrap combines errs into a single error. Returns nil if errs is empty.
func Wrap(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return &multiError{errs: errs}
}
