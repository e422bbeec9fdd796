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

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/ingest"
)

// TestFaultKeepsOrchestratorRunningButStopsMonitoring exercises the
// Faulted state via ingest.StubSource.Fault, which only exists on the
// non-Windows build of pkg/ingest.
func TestFaultKeepsOrchestratorRunningButStopsMonitoring(t *testing.T) {
	o := New(testConfig(), ingest.NewStubProber())
	defer o.Stop(context.Background())

	require.NoError(t, o.Start(context.Background()))

	stub := o.source.(*ingest.StubSource)
	stub.Fault(kerrors.ErrFaulted)

	require.Eventually(t, func() bool {
		return !o.IsEtwMonitoring()
	}, time.Second, 10*time.Millisecond)

	assert.True(t, o.IsRunning())
}
