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

	"github.com/rabbitstack/proctail/pkg/config"
	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/ingest"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.PipeSettings.PipeName = "ProcTailIPC-test"
	return cfg
}

func TestStartTransitionsToRunning(t *testing.T) {
	o := New(testConfig(), ingest.NewStubProber())
	defer o.Stop(context.Background())

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.IsRunning())
	assert.True(t, o.IsEtwMonitoring())
}

func TestStartTwiceIsRejected(t *testing.T) {
	o := New(testConfig(), ingest.NewStubProber())
	defer o.Stop(context.Background())

	require.NoError(t, o.Start(context.Background()))
	err := o.Start(context.Background())
	assert.ErrorIs(t, err, kerrors.ErrAlreadyRunning)
}

func TestStopIsIdempotent(t *testing.T) {
	o := New(testConfig(), ingest.NewStubProber())
	require.NoError(t, o.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Stop(ctx))
	require.NoError(t, o.Stop(ctx))

	assert.False(t, o.IsRunning())
}

func TestSnapshotReportsState(t *testing.T) {
	o := New(testConfig(), ingest.NewStubProber())
	defer o.Stop(context.Background())

	snap := o.Snapshot()
	assert.Equal(t, string(stateStopped), snap.State)

	require.NoError(t, o.Start(context.Background()))
	snap = o.Snapshot()
	assert.Equal(t, string(stateRunning), snap.State)
	assert.True(t, snap.EtwRunning)
}

