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

// Package orchestrator wires the Kernel Event Source, Event Normalizer,
// Watch Registry, Event Store, and IPC Router together behind an
// explicit lifecycle state machine, and is the one component that holds
// a reference to all five — every other component only sees the narrow
// capability interfaces it needs, per the design notes each of those
// packages documents at its own construction site.
package orchestrator

import (
	"context"
	"sync"

	"github.com/qmuntal/stateless"
	log "github.com/sirupsen/logrus"

	"github.com/rabbitstack/proctail/pkg/config"
	kerrors "github.com/rabbitstack/proctail/pkg/errors"
	"github.com/rabbitstack/proctail/pkg/ingest"
	"github.com/rabbitstack/proctail/pkg/ipc"
	"github.com/rabbitstack/proctail/pkg/normalize"
	"github.com/rabbitstack/proctail/pkg/registry"
	"github.com/rabbitstack/proctail/pkg/store"
)

type state string

const (
	stateStopped  state = "stopped"
	stateStarting state = "starting"
	stateRunning  state = "running"
	stateStopping state = "stopping"
	stateFaulted  state = "faulted"
)

type trigger string

const (
	triggerStart   trigger = "start"
	triggerStarted trigger = "started"
	triggerStop    trigger = "stop"
	triggerStopped trigger = "stopped"
	triggerFault   trigger = "fault"
)

// kernelSource is the subset of pkg/ingest.Source the orchestrator drives.
type kernelSource interface {
	Start() error
	Stop() error
	IsRunning() bool
	IsFaulted() bool
	Errors() chan error
}

// Orchestrator owns the agent's full component graph and its lifecycle.
// It implements ipc.StatusSource and is the ShutdownFunc target the
// Router invokes after replying to a Shutdown request.
type Orchestrator struct {
	cfg *config.Config

	source    kernelSource
	normalize *normalize.Normalizer
	registry  *registry.Registry
	store     *store.Store
	router    *ipc.Router

	sm *stateless.StateMachine

	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds the full component graph from cfg but does not start
// anything. prober supplies the Watch Registry's liveness/metadata
// lookups; on Windows this is ingest.NewWindowsProber(), on non-Windows
// hosts (tests) it's a stub.
func New(cfg *config.Config, prober registry.ProcessProber) *Orchestrator {
	o := &Orchestrator{cfg: cfg, stopped: make(chan struct{})}

	o.store = store.New(cfg.EventSettings.MaxEventsPerTag)
	o.registry = registry.New(prober, o.store.EnsureTag)
	o.normalize = normalize.New(o.registry, o.store)
	o.source = newKernelSource(o.normalize)

	o.router = ipc.New(routerOptions(cfg), o.registry, o.store, o, o.beginStop)

	o.sm = o.buildStateMachine()
	return o
}

func routerOptions(cfg *config.Config) ipc.Options {
	return ipc.Options{
		PipeName:                 cfg.PipeSettings.PipeName,
		MaxConcurrentConnections: cfg.PipeSettings.MaxConcurrentConnections,
		HandlerTimeout:           cfg.HandlerTimeout(),
		MaxMessageBytes:          cfg.PipeSettings.MaxMessageBytes,
		BufferSize:               int32(cfg.PipeSettings.BufferSize),
		RequestsPerSecond:        cfg.PipeSettings.RequestsPerSecond,
	}
}

func (o *Orchestrator) buildStateMachine() *stateless.StateMachine {
	// Queued firing mode: onStarting/onStopping fire their own completion
	// trigger from inside the OnEntry callback stateless invokes for them,
	// which the default immediate mode forbids.
	sm := stateless.NewStateMachineWithMode(stateStopped, stateless.FiringQueued)

	sm.Configure(stateStopped).
		Permit(triggerStart, stateStarting)

	sm.Configure(stateStarting).
		OnEntry(o.onStarting).
		Permit(triggerStarted, stateRunning).
		Permit(triggerFault, stateFaulted)

	sm.Configure(stateRunning).
		Permit(triggerStop, stateStopping).
		Permit(triggerFault, stateFaulted)

	sm.Configure(stateStopping).
		OnEntry(o.onStopping).
		Permit(triggerStopped, stateStopped)

	// Faulted keeps the IPC endpoint serving cached reads — GetStatus and
	// HealthCheck report etw_monitoring=false, but GetRecordedEvents still
	// answers out of the Event Store. Only an explicit Stop tears the
	// process down from here.
	sm.Configure(stateFaulted).
		OnEntry(o.onFaulted).
		Permit(triggerStop, stateStopping)

	return sm
}

// Start transitions Stopped -> Starting -> Running, bringing up the
// kernel event source and the IPC router. Returns
// kerrors.ErrAlreadyRunning if called outside the Stopped state.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.sm.IsInState(stateStopped) {
		return kerrors.ErrAlreadyRunning
	}
	return o.sm.FireCtx(ctx, triggerStart)
}

func (o *Orchestrator) onStarting(ctx context.Context, _ ...interface{}) error {
	if err := o.source.Start(); err != nil {
		log.Errorf("kernel event source failed to start: %v", err)
		go func() { _ = o.sm.FireCtx(context.Background(), triggerFault) }()
		return err
	}
	if err := o.router.Start(); err != nil {
		log.Errorf("ipc router failed to start: %v", err)
		_ = o.source.Stop()
		go func() { _ = o.sm.FireCtx(context.Background(), triggerFault) }()
		return err
	}
	go o.watchSourceErrors()
	return o.sm.FireCtx(ctx, triggerStarted)
}

// watchSourceErrors forwards an unrequested kernel session death into a
// Fault transition. The process keeps serving IPC reads out of whatever
// the Event Store already has; only etw_monitoring flips to false.
func (o *Orchestrator) watchSourceErrors() {
	err, ok := <-o.source.Errors()
	if !ok {
		return
	}
	log.Errorf("kernel event source faulted: %v", err)
	_ = o.sm.FireCtx(context.Background(), triggerFault)
}

func (o *Orchestrator) onFaulted(context.Context, ...interface{}) error {
	log.Warn("kernel event source faulted, ipc endpoint remains available for cached reads")
	return nil
}

// Stop begins the shutdown sequence and blocks until it completes.
// Idempotent: a second call while already stopping/stopped waits on the
// same completion.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.beginStop()
	select {
	case <-o.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginStop is the ShutdownFunc the Router invokes after flushing its
// Shutdown reply. It's also reachable directly (signal handling in
// cmd/proctail-agent), hence the sync.Once: both paths must converge on
// exactly one stop sequence. onStarting runs synchronously inside
// Start's Fire call, so by the time any caller can observe the
// Orchestrator at all the state machine has already left Starting for
// Running or Faulted — this only needs to handle those two.
func (o *Orchestrator) beginStop() {
	o.stopOnce.Do(func() {
		go func() {
			if o.sm.IsInState(stateRunning) || o.sm.IsInState(stateFaulted) {
				_ = o.sm.FireCtx(context.Background(), triggerStop)
			}
			close(o.stopped)
		}()
	})
}

func (o *Orchestrator) onStopping(ctx context.Context, _ ...interface{}) error {
	if err := o.router.Stop(); err != nil {
		log.Warnf("ipc router stop: %v", err)
	}
	if err := o.source.Stop(); err != nil {
		log.Warnf("kernel event source stop: %v", err)
	}
	if err := o.registry.Close(); err != nil {
		log.Warnf("watch registry close: %v", err)
	}
	return o.sm.FireCtx(ctx, triggerStopped)
}

// IsRunning implements ipc.StatusSource.
func (o *Orchestrator) IsRunning() bool {
	return o.sm.IsInState(stateRunning) || o.sm.IsInState(stateFaulted)
}

// IsEtwMonitoring implements ipc.StatusSource.
func (o *Orchestrator) IsEtwMonitoring() bool {
	return o.source.IsRunning() && !o.source.IsFaulted()
}

// Status is a point-in-time snapshot for cmd/proctail-agent's own
// startup logging and for tests; GetStatus's wire representation is
// assembled in pkg/ipc from the same two methods above plus store.Stats.
type Status struct {
	State        string
	EtwRunning   bool
	RegistrySize int
	StoreStats   store.Stats
}

// Snapshot returns the current Status.
func (o *Orchestrator) Snapshot() Status {
	return Status{
		State:        string(o.sm.MustState().(state)),
		EtwRunning:   o.IsEtwMonitoring(),
		RegistrySize: len(o.registry.List()),
		StoreStats:   o.store.Stats(),
	}
}

func newKernelSource(sink ingest.Sink) kernelSource {
	return newPlatformSource(sink)
}
