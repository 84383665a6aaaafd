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
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// MaxFrameSize is the largest payload a 2-byte big-endian length
// prefix can carry.
const MaxFrameSize = 0xffff

// TCPTransport frames payloads with a 2-byte big-endian length prefix
// over a net.Conn, used by both the plain TCP and TCP_EX session
// variants.
type TCPTransport struct {
	conn    net.Conn
	handler Handler

	writeMu sync.Mutex

	recvMu    sync.Mutex
	suspended bool
	pending   [][]byte

	onSend func()

	closeOnce sync.Once
	stopHB    chan struct{}
}

// NewTCPTransport starts the background read loop for conn and begins
// delivering frames to handler.
func NewTCPTransport(conn net.Conn, handler Handler) *TCPTransport {
	t := &TCPTransport{conn: conn, handler: handler, stopHB: make(chan struct{})}
	go t.readLoop()
	return t
}

func (t *TCPTransport) readLoop() {
	var pool RecvPool
	buf := make([]byte, 64*1024)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			pool.Append(buf[:n])
			t.drainFrames(&pool)
		}
		if err != nil {
			t.handler.OnClose(err)
			return
		}
	}
}

func (t *TCPTransport) drainFrames(pool *RecvPool) {
	for {
		if pool.DataSize() < 2 {
			return
		}
		lenBuf := pool.Peek(2)
		frameLen := int(binary.BigEndian.Uint16(lenBuf))
		if pool.DataSize() < 2+frameLen {
			return
		}
		if frameLen == 0 {
			// length_be=0 is a keepalive: drop silently, connection stays open.
			pool.Flush(2)
			continue
		}
		frame := append([]byte{}, pool.Peek(2+frameLen)[2:]...)
		pool.Flush(2 + frameLen)
		t.deliver(frame)
	}
}

func (t *TCPTransport) deliver(frame []byte) {
	t.recvMu.Lock()
	if t.suspended {
		t.pending = append(t.pending, frame)
		t.recvMu.Unlock()
		return
	}
	t.recvMu.Unlock()
	t.handler.OnRecv(frame)
}

// SendData implements Transport.
func (t *TCPTransport) SendData(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return io.ErrShortBuffer
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := t.conn.Write(payload)
	if err == nil && t.onSend != nil {
		cb := t.onSend
		t.onSend = nil
		go cb()
	}
	return err
}

// RequestOnSend implements Transport.
func (t *TCPTransport) RequestOnSend(cb func()) {
	t.writeMu.Lock()
	t.onSend = cb
	t.writeMu.Unlock()
}

// StartHeartbeat implements Transport: sends an empty frame on
// interval until Close.
func (t *TCPTransport) StartHeartbeat(interval time.Duration) {
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
func (t *TCPTransport) SuspendRecv() {
	t.recvMu.Lock()
	t.suspended = true
	t.recvMu.Unlock()
}

// ResumeRecv implements Transport.
func (t *TCPTransport) ResumeRecv() {
	t.recvMu.Lock()
	queued := t.pending
	t.pending = nil
	t.suspended = false
	t.recvMu.Unlock()
	for _, frame := range queued {
		t.handler.OnRecv(frame)
	}
}

// LocalAddr implements Transport.
func (t *TCPTransport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// RemoteAddr implements Transport.
func (t *TCPTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// Close implements Transport.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopHB)
		err = t.conn.Close()
	})
	return err
}
