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

package ipc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
)

// envelopeSchema constrains the shape every request must satisfy before
// it's even decoded into a Request: an object with a string RequestType
// and, when present, correctly-typed ProcessId/TagName/MaxCount fields.
// RequestType's enum membership is checked separately so the error message
// can name the offending value (see checkKnownType below, called from
// dispatch in handlers.go).
const envelopeSchema = `{
  "type": "object",
  "required": ["RequestType"],
  "properties": {
    "RequestType": {"type": "string"},
    "ProcessId": {"type": "integer", "minimum": 0},
    "TagName": {"type": "string"},
    "MaxCount": {"type": "integer", "minimum": 0}
  }
}`

var envelopeSchemaLoader = gojsonschema.NewStringLoader(envelopeSchema)

// decodeRequest validates payload against envelopeSchema, then unmarshals
// it into a Request. Any failure returns ErrMalformedRequest.
func decodeRequest(payload []byte) (*Request, error) {
	if !json.Valid(payload) {
		return nil, kerrors.MalformedRequestf("payload is not valid JSON")
	}

	result, err := gojsonschema.Validate(envelopeSchemaLoader, gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, kerrors.MalformedRequestf("schema validation error: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, kerrors.MalformedRequestf("%s", strings.Join(msgs, "; "))
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, kerrors.MalformedRequestf("%v", err)
	}
	return &req, nil
}

// checkKnownType returns an error containing "Unknown request type" when
// req.RequestType isn't one of the eight supported requests — the literal
// substring scenario S5 asserts on.
func checkKnownType(req *Request) error {
	if _, ok := knownRequestTypes[req.RequestType]; !ok {
		return fmt.Errorf("Unknown request type: %q", req.RequestType)
	}
	return nil
}
