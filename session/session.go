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

// Package session implements the Session Wrapper: the
// state machine, bucket and reorder buffer common to every transport
// variant, and the even/odd dummy port reservation used by the
// TCP server variants.
package session

import (
	"github.com/meshrelay/rtprelay/handshake"
	"github.com/meshrelay/rtprelay/wire"
)

// State is the session lifecycle state machine.
type State int

// Session states.
const (
	StateNew State = iota
	StateConnecting
	StateOK
	StateClosed
)

// String names a State for logging.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateOK:
		return "ok"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Observer receives the session-level callbacks a Wrapper delivers for
// a given session, serialized by the Wrapper so they never run
// concurrently with each other.
type Observer interface {
	// OnHandshakeOK fires once a TCP_EX/SSL_EX session's nonce exchange
	// completes and info describes the peer's negotiated parameters.
	OnHandshakeOK(s *Wrapper, info *wire.SessionInfo)
	// OnRecvPacket delivers one fully reassembled packet already
	// passed through the reorder buffer (for media on the datagram
	// variants) or received in order (for everything else).
	OnRecvPacket(s *Wrapper, p *wire.Packet)
	// OnCloseSession fires exactly once, after which s is unusable.
	// It is always how failures are surfaced -- never a panic, never
	// a returned Go error from inside a callback.
	OnCloseSession(s *Wrapper, reason handshake.CloseReason, err error)
}

// Config configures redlines, reorder window and timer pacing for a
// Wrapper. Zero values fall back to package defaults.
type Config struct {
	RedlineBytes      uint32
	RedlineFrames     uint32
	ReorderWindow     int
	StrictVideoStream bool
	HeartbeatInterval int // seconds; 0 disables heartbeats
}
