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

package transport

import (
	"net"
	"sync"
	"time"
)

// UDPTransport carries one packet per SendData/OnRecv call with no
// framing: the datagram boundary is the frame boundary.
// It is bound to a single remote peer even though the underlying
// socket may be shared by many sessions (routing an incoming datagram
// to the right UDPTransport's Deliver is left to the socket's owner,
// mirroring the worker/client split in a subscription-based unicast
// server).
type UDPTransport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	handler    Handler

	writeMu sync.Mutex
	onSend  func()

	recvMu    sync.Mutex
	suspended bool
	pending   [][]byte

	stopHB    chan struct{}
	closeOnce sync.Once
}

// NewUDPTransport wraps conn as a Transport bound to remoteAddr.
// Dispatching inbound datagrams to Deliver is the caller's
// responsibility since one UDP socket is shared by every peer.
func NewUDPTransport(conn *net.UDPConn, remoteAddr *net.UDPAddr, handler Handler) *UDPTransport {
	return &UDPTransport{conn: conn, remoteAddr: remoteAddr, handler: handler, stopHB: make(chan struct{})}
}

// Deliver hands one datagram already known to originate from
// remoteAddr to the handler, honoring SuspendRecv.
func (t *UDPTransport) Deliver(payload []byte) {
	t.recvMu.Lock()
	if t.suspended {
		cp := append([]byte{}, payload...)
		t.pending = append(t.pending, cp)
		t.recvMu.Unlock()
		return
	}
	t.recvMu.Unlock()
	t.handler.OnRecv(payload)
}

// SendData implements Transport.
func (t *UDPTransport) SendData(payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err := t.conn.WriteToUDP(payload, t.remoteAddr)
	if err == nil && t.onSend != nil {
		cb := t.onSend
		t.onSend = nil
		go cb()
	}
	return err
}

// RequestOnSend implements Transport.
func (t *UDPTransport) RequestOnSend(cb func()) {
	t.writeMu.Lock()
	t.onSend = cb
	t.writeMu.Unlock()
}

// StartHeartbeat implements Transport.
func (t *UDPTransport) StartHeartbeat(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = t.SendData(nil)
			case <-t.stopHB:
				return
			}
		}
	}()
}

// SuspendRecv implements Transport.
func (t *UDPTransport) SuspendRecv() {
	t.recvMu.Lock()
	t.suspended = true
	t.recvMu.Unlock()
}

// ResumeRecv implements Transport.
func (t *UDPTransport) ResumeRecv() {
	t.recvMu.Lock()
	queued := t.pending
	t.pending = nil
	t.suspended = false
	t.recvMu.Unlock()
	for _, p := range queued {
		t.handler.OnRecv(p)
	}
}

// LocalAddr implements Transport.
func (t *UDPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// RemoteAddr implements Transport.
func (t *UDPTransport) RemoteAddr() net.Addr { return t.remoteAddr }

// Close implements Transport. The shared socket itself is closed by
// whatever owns the listener, not by an individual peer's transport.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() { close(t.stopHB) })
	return nil
}
