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

// Package transport implements the three wire-level carriers a
// session can ride on -- TCP with 2-byte length-prefixed framing, raw
// UDP datagrams, and TLS-wrapped TCP -- behind one shared interface.
package transport

import (
	"net"
	"time"
)

// Transport is the carrier-independent surface the session layer
// drives. Each variant owns its own socket and framing rules but
// presents the same send/receive/suspend controls.
type Transport interface {
	// SendData queues payload for transmission. For TCP/SSL this
	// prefixes the frame with its 2-byte big-endian length; for UDP it
	// is sent as one datagram.
	SendData(payload []byte) error
	// RequestOnSend arms a one-shot callback invoked once the socket
	// is writable again, mirroring the reactor's edge-triggered write
	// notification instead of busy-polling for EWOULDBLOCK to clear.
	RequestOnSend(cb func())
	// StartHeartbeat begins sending an empty keepalive frame every
	// interval until Close, used by the connection-oriented variants
	// to detect a silently dead peer.
	StartHeartbeat(interval time.Duration)
	// SuspendRecv stops delivering OnRecv callbacks without closing
	// the underlying socket, used for session-level backpressure.
	SuspendRecv()
	// ResumeRecv resumes OnRecv delivery after SuspendRecv.
	ResumeRecv()
	// LocalAddr and RemoteAddr report the socket endpoints.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	// Close tears down the transport and its underlying socket.
	Close() error
}

// Handler receives transport-level events. OnRecv delivers one
// complete framed payload at a time; OnClose reports the terminal
// reason once, after which no further callbacks fire.
type Handler interface {
	OnRecv(payload []byte)
	OnClose(err error)
}
