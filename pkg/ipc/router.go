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
	"context"
	"expvar"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rabbitstack/proctail/pkg/event"
	"github.com/rabbitstack/proctail/pkg/registry"
	"github.com/rabbitstack/proctail/pkg/store"
)

var (
	connectionsAccepted = expvar.NewInt("ipc.connections.accepted")
	connectionsActive   = expvar.NewInt("ipc.connections.active")
	requestsHandled     = expvar.NewMap("ipc.requests.handled")
	requestsTimedOut    = expvar.NewInt("ipc.requests.timed_out")
	requestsRejected    = expvar.NewInt("ipc.requests.rejected")
)

// WatchRegistry is the subset of the Watch Registry the router depends on.
// Injected as a capability, not a reference back to the orchestrator,
// per the teacher's cyclic-reference design note.
type WatchRegistry interface {
	Add(pid uint32, tag string) error
	RemoveByTag(tag string) int
	List() []registry.Entry
}

// EventStore is the subset of the Event Store the router depends on.
type EventStore interface {
	Read(tag string, maxCount int) ([]*event.Event, error)
	Clear(tag string) error
	Stats() store.Stats
}

// StatusSource reports the orchestrator's live subsystem state for
// GetStatus/HealthCheck, without giving the router a way to control it
// beyond the explicit ShutdownFunc.
type StatusSource interface {
	IsRunning() bool
	IsEtwMonitoring() bool
}

// ShutdownFunc is invoked, after the Shutdown reply has flushed, to begin
// the orchestrator's stop sequence.
type ShutdownFunc func()

// Options configures a Router.
type Options struct {
	PipeName                 string
	MaxConcurrentConnections int
	HandlerTimeout           time.Duration
	MaxMessageBytes          int
	BufferSize               int32
	RequestsPerSecond        float64
	DrainTimeout             time.Duration
}

// Router is the concrete IPC Router (C5).
type Router struct {
	opts     Options
	registry WatchRegistry
	store    EventStore
	status   StatusSource
	shutdown ShutdownFunc

	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc

	sem chan struct{} // bounds concurrent connections

	wg sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// New constructs a Router. It does not start listening until Start is
// called.
func New(opts Options, reg WatchRegistry, st EventStore, status StatusSource, shutdown ShutdownFunc) *Router {
	if opts.MaxConcurrentConnections <= 0 {
		opts.MaxConcurrentConnections = 10
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	if opts.MaxMessageBytes <= 0 || opts.MaxMessageBytes > maxFrameBytes {
		opts.MaxMessageBytes = maxFrameBytes
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 5 * time.Second
	}
	return &Router{
		opts:     opts,
		registry: reg,
		store:    st,
		status:   status,
		shutdown: shutdown,
		sem:      make(chan struct{}, opts.MaxConcurrentConnections),
	}
}

// Start creates the endpoint (a named pipe on Windows; see pipe_windows.go
// and pipe_other.go for the platform split) and begins accepting
// connections. Calling it while already running is a no-op that returns
// nil.
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	l, err := listen(r.opts)
	if err != nil {
		return fmt.Errorf("unable to create endpoint %s: %w", r.opts.PipeName, err)
	}
	r.listener = l
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.wg.Add(1)
	go r.acceptLoop()

	log.Infof("ipc router listening on %s", r.opts.PipeName)
	return nil
}

func (r *Router) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
				log.Warnf("accept error: %v", err)
				return
			}
		}

		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			conn.Close()
			return
		}

		connectionsAccepted.Add(1)
		connectionsActive.Add(1)
		r.wg.Add(1)
		go func() {
			defer func() {
				<-r.sem
				connectionsActive.Add(-1)
				r.wg.Done()
			}()
			r.handleConn(conn)
		}()
	}
}

// handleConn serves exactly one request/response round-trip, then closes
// the connection, per spec.md §4.5's simple-request-response contract.
func (r *Router) handleConn(conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()[:8]
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.ctx, r.opts.HandlerTimeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(r.requestsPerSecond()), 1)
	if err := limiter.Wait(ctx); err != nil {
		requestsRejected.Add(1)
		return
	}

	payload, err := readFrame(conn, uint32(r.opts.MaxMessageBytes))
	if err != nil {
		log.Debugf("[%s] frame read error: %v", connID, err)
		return
	}

	req, err := decodeRequest(payload)
	if err != nil {
		_ = writeFrame(conn, errorResponse(err.Error()))
		return
	}

	resultCh := make(chan *Response, 1)
	go func() {
		resultCh <- r.dispatch(ctx, req)
	}()

	select {
	case resp := <-resultCh:
		if resp == nil {
			// Cooperative cancellation: discard rather than send, per
			// spec.md §5.
			return
		}
		if err := writeFrame(conn, resp); err != nil {
			log.Debugf("[%s] frame write error: %v", connID, err)
			return
		}
		requestsHandled.Add(string(req.RequestType), 1)
		log.Debugf("[%s] %s handled in %s", connID, req.RequestType, time.Since(start))

		if req.RequestType == ReqShutdown {
			r.beginShutdown()
		}
	case <-ctx.Done():
		requestsTimedOut.Add(1)
		log.Debugf("[%s] %s timed out after %s", connID, req.RequestType, r.opts.HandlerTimeout)
		return
	}
}

func (r *Router) requestsPerSecond() float64 {
	if r.opts.RequestsPerSecond <= 0 {
		return 1000
	}
	return r.opts.RequestsPerSecond
}

// beginShutdown schedules the orchestrator stop on a background goroutine
// so the Shutdown reply has already been flushed to the client before the
// endpoint starts quiescing new accepts.
func (r *Router) beginShutdown() {
	if r.shutdown == nil {
		return
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		r.shutdown()
	}()
}

// Stop quiesces new accepts, drains in-flight handlers up to DrainTimeout,
// and closes the endpoint. Idempotent.
func (r *Router) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	cancel := r.cancel
	listener := r.listener
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.opts.DrainTimeout):
		log.Warnf("ipc router drain timeout exceeded, forcing shutdown")
	}
	return nil
}
