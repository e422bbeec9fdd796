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

// Package event defines the data model shared by the ingest, normalize,
// store, and IPC layers: the ephemeral Raw event produced by the kernel
// event source and the durable Normalized event retained in tag rings.
package event

import "time"

// Raw is the ephemeral record handed from the kernel event source to the
// normalizer. It never leaves the ingest path and is never stored.
type Raw struct {
	Timestamp         time.Time
	Provider          string
	Kind              string
	PID               uint32
	TID               uint32
	ActivityID        string
	RelatedActivityID string
	Params            map[string]interface{}
}

// Param returns the named parameter and whether it was present.
func (r *Raw) Param(name string) (interface{}, bool) {
	if r.Params == nil {
		return nil, false
	}
	v, ok := r.Params[name]
	return v, ok
}

// StringParam returns the named parameter as a string, or the empty string
// if it is absent or not a string.
func (r *Raw) StringParam(name string) string {
	v, ok := r.Param(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Uint32Param returns the named parameter as a uint32, or 0 if it is absent
// or not numeric.
func (r *Raw) Uint32Param(name string) uint32 {
	v, ok := r.Param(name)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case uint32:
		return n
	case int:
		return uint32(n)
	case int64:
		return uint32(n)
	case float64:
		return uint32(n)
	default:
		return 0
	}
}
