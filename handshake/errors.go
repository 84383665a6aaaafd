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

// Package handshake implements the four-step nonce exchange that
// establishes a TCP_EX/SSL_EX session.
package handshake

import "fmt"

// CloseReason enumerates why a session or handshake attempt ended.
type CloseReason int

// Close reasons.
const (
	ReasonNone CloseReason = iota
	ReasonSockIO
	ReasonHandshakeTimeout
	ReasonHandshakeProtocol
	ReasonSSLFail
	ReasonPeerDead
	ReasonBadFrame
	ReasonBackpressure
	ReasonAuthFail
	ReasonInvalidState
)

// String names a CloseReason for logging and stats labels.
func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonSockIO:
		return "sock_io"
	case ReasonHandshakeTimeout:
		return "hs_timeout"
	case ReasonHandshakeProtocol:
		return "hs_protocol"
	case ReasonSSLFail:
		return "ssl_fail"
	case ReasonPeerDead:
		return "peer_dead"
	case ReasonBadFrame:
		return "bad_frame"
	case ReasonBackpressure:
		return "backpressure"
	case ReasonAuthFail:
		return "auth_fail"
	case ReasonInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// SessionError wraps a CloseReason with an optional lower-level cause
// and, for ReasonSSLFail, the underlying TLS alert code.
type SessionError struct {
	Reason  CloseReason
	SSLCode int
	Cause   error
}

// NewSessionError builds a SessionError for reason, wrapping cause.
func NewSessionError(reason CloseReason, cause error) *SessionError {
	return &SessionError{Reason: reason, Cause: cause}
}

// Error implements error.
func (e *SessionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("handshake: %s", e.Reason)
	}
	return fmt.Sprintf("handshake: %s: %v", e.Reason, e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *SessionError) Unwrap() error { return e.Cause }
