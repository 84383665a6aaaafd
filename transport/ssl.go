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
	"crypto/tls"
	"fmt"

	"github.com/meshrelay/rtprelay/handshake"
)

// NewSSLTransport drives the TLS handshake on raw (already configured
// as a client or server tls.Conn by the caller) and, once it
// completes, returns a TCPTransport over it: the SSL_EX variant reuses
// the same 2-byte length-prefixed framing as TCP_EX once the channel
// is encrypted.
func NewSSLTransport(raw *tls.Conn, handler Handler) (*TCPTransport, error) {
	if err := raw.Handshake(); err != nil {
		return nil, handshake.NewSessionError(handshake.ReasonSSLFail, err)
	}
	state := raw.ConnectionState()
	if !state.HandshakeComplete {
		return nil, handshake.NewSessionError(handshake.ReasonSSLFail, fmt.Errorf("tls handshake did not complete"))
	}
	return NewTCPTransport(raw, handler), nil
}
