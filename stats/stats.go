/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats collects per-process counters for the session and
// message-server layers and exposes them through JSON and
// Prometheus exporters, mirroring the counters/exporter split the
// teacher's ptp4u daemon uses for its clock-sync metrics.
package stats

import "sync"

// Stats is the counter surface both the session reactor and the
// message server increment into. A single process-wide instance is
// normally shared across every worker goroutine.
type Stats interface {
	IncSessionsCreated()
	IncSessionsClosed(reason string)
	IncPacketsIn(mmType string)
	IncPacketsOut(mmType string)
	IncBytesIn(mmType string, n uint64)
	IncBytesOut(mmType string, n uint64)
	IncBucketDrops(mmType string)
	IncReorderDrops()
	IncHandshakeOK()
	IncHandshakeFail(reason string)
	SetActiveSessions(n int64)
	SetTaskQueueDepth(n int64)
	Snapshot() Snapshot
	Reset()
}

// Snapshot is an immutable copy of every counter at one point in time,
// used by both exporters so a single read underlies both.
type Snapshot struct {
	SessionsCreated  int64
	SessionsClosed   map[string]int64
	PacketsIn        map[string]int64
	PacketsOut       map[string]int64
	BytesIn          map[string]int64
	BytesOut         map[string]int64
	BucketDrops      map[string]int64
	ReorderDrops     int64
	HandshakeOK      int64
	HandshakeFail    map[string]int64
	ActiveSessions   int64
	TaskQueueDepth   int64
}

// syncMapInt64 is a string-keyed counter map safe for concurrent
// increment from many reactor worker goroutines, the same shape the
// teacher's ptp4u stats package uses for its per-subscription counters.
type syncMapInt64 struct {
	mu sync.Mutex
	m  map[string]int64
}

func newSyncMapInt64() *syncMapInt64 {
	return &syncMapInt64{m: make(map[string]int64)}
}

func (s *syncMapInt64) inc(key string, n int64) {
	s.mu.Lock()
	s.m[key] += n
	s.mu.Unlock()
}

func (s *syncMapInt64) snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *syncMapInt64) reset() {
	s.mu.Lock()
	s.m = make(map[string]int64)
	s.mu.Unlock()
}

// counters is the default in-process Stats implementation.
type counters struct {
	sessionsCreated  int64Counter
	sessionsClosed   *syncMapInt64
	packetsIn        *syncMapInt64
	packetsOut       *syncMapInt64
	bytesIn          *syncMapInt64
	bytesOut         *syncMapInt64
	bucketDrops      *syncMapInt64
	reorderDrops     int64Counter
	handshakeOK      int64Counter
	handshakeFail    *syncMapInt64
	activeSessions   int64Counter
	taskQueueDepth   int64Counter
}

// int64Counter is a single atomic-by-mutex counter, used for the
// scalar (non-keyed) metrics.
type int64Counter struct {
	mu sync.Mutex
	v  int64
}

func (c *int64Counter) add(n int64) {
	c.mu.Lock()
	c.v += n
	c.mu.Unlock()
}

func (c *int64Counter) set(n int64) {
	c.mu.Lock()
	c.v = n
	c.mu.Unlock()
}

func (c *int64Counter) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// New returns a process-wide Stats instance backed by in-memory
// counters.
func New() Stats {
	return &counters{
		sessionsClosed: newSyncMapInt64(),
		packetsIn:      newSyncMapInt64(),
		packetsOut:     newSyncMapInt64(),
		bytesIn:        newSyncMapInt64(),
		bytesOut:       newSyncMapInt64(),
		bucketDrops:    newSyncMapInt64(),
		handshakeFail:  newSyncMapInt64(),
	}
}

func (c *counters) IncSessionsCreated()                     { c.sessionsCreated.add(1) }
func (c *counters) IncSessionsClosed(reason string)          { c.sessionsClosed.inc(reason, 1) }
func (c *counters) IncPacketsIn(mmType string)               { c.packetsIn.inc(mmType, 1) }
func (c *counters) IncPacketsOut(mmType string)              { c.packetsOut.inc(mmType, 1) }
func (c *counters) IncBytesIn(mmType string, n uint64)       { c.bytesIn.inc(mmType, int64(n)) }
func (c *counters) IncBytesOut(mmType string, n uint64)      { c.bytesOut.inc(mmType, int64(n)) }
func (c *counters) IncBucketDrops(mmType string)             { c.bucketDrops.inc(mmType, 1) }
func (c *counters) IncReorderDrops()                         { c.reorderDrops.add(1) }
func (c *counters) IncHandshakeOK()                          { c.handshakeOK.add(1) }
func (c *counters) IncHandshakeFail(reason string)           { c.handshakeFail.inc(reason, 1) }
func (c *counters) SetActiveSessions(n int64)                { c.activeSessions.set(n) }
func (c *counters) SetTaskQueueDepth(n int64)                { c.taskQueueDepth.set(n) }

func (c *counters) Snapshot() Snapshot {
	return Snapshot{
		SessionsCreated: c.sessionsCreated.get(),
		SessionsClosed:  c.sessionsClosed.snapshot(),
		PacketsIn:       c.packetsIn.snapshot(),
		PacketsOut:      c.packetsOut.snapshot(),
		BytesIn:         c.bytesIn.snapshot(),
		BytesOut:        c.bytesOut.snapshot(),
		BucketDrops:     c.bucketDrops.snapshot(),
		ReorderDrops:    c.reorderDrops.get(),
		HandshakeOK:     c.handshakeOK.get(),
		HandshakeFail:   c.handshakeFail.snapshot(),
		ActiveSessions:  c.activeSessions.get(),
		TaskQueueDepth:  c.taskQueueDepth.get(),
	}
}

func (c *counters) Reset() {
	c.sessionsCreated.set(0)
	c.sessionsClosed.reset()
	c.packetsIn.reset()
	c.packetsOut.reset()
	c.bytesIn.reset()
	c.bytesOut.reset()
	c.bucketDrops.reset()
	c.reorderDrops.set(0)
	c.handshakeOK.set(0)
	c.handshakeFail.reset()
	c.activeSessions.set(0)
	c.taskQueueDepth.set(0)
}
