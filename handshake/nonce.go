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

package handshake

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meshrelay/rtprelay/wire"
)

// NonceSize is the length in bytes of each random nonce exchanged
// during the handshake, matching the original 16-byte nonce.
const NonceSize = 16

// proofSize is the HMAC-SHA256 MAC length carried in steps 2 and 3.
const proofSize = sha256.Size

// writeFrame writes a uint16-length-prefixed frame, the same framing
// the TCP transport uses for ordinary data once the session is open.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xffff {
		return fmt.Errorf("handshake: frame too large: %d", len(payload))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one uint16-length-prefixed frame.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// randomNonce returns NonceSize cryptographically random bytes.
func randomNonce() ([]byte, error) {
	b := make([]byte, NonceSize)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// proof computes HMAC-SHA256(password, nonce), the value each side
// proves knowledge of the shared password without sending it.
func proof(password, nonce []byte) []byte {
	mac := hmac.New(sha256.New, password)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// Initiate runs the connector side of the four-step exchange over rw:
//  1. send a fresh client nonce
//  2. receive the peer's nonce plus its proof of the client nonce
//  3. send proof of the peer's nonce
//  4. receive the peer's SessionInfo, completing the handshake
//
// password must match the acceptor's configured password or step 2's
// proof check fails with ReasonAuthFail.
func Initiate(rw io.ReadWriter, password []byte, local *wire.SessionInfo) (*wire.SessionInfo, error) {
	clientNonce, err := randomNonce()
	if err != nil {
		return nil, NewSessionError(ReasonHandshakeProtocol, err)
	}
	if err := writeFrame(rw, clientNonce); err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}

	step2, err := readFrame(rw)
	if err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}
	if len(step2) != NonceSize+proofSize {
		return nil, NewSessionError(ReasonHandshakeProtocol, fmt.Errorf("malformed step 2 frame"))
	}
	serverNonce := step2[:NonceSize]
	serverProof := step2[NonceSize:]
	if !hmac.Equal(serverProof, proof(password, clientNonce)) {
		return nil, NewSessionError(ReasonAuthFail, fmt.Errorf("peer failed to prove client nonce"))
	}

	if err := writeFrame(rw, proof(password, serverNonce)); err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}

	step4, err := readFrame(rw)
	if err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}
	var remote wire.SessionInfo
	if err := remote.Unmarshal(step4); err != nil {
		return nil, NewSessionError(ReasonHandshakeProtocol, err)
	}
	_ = local // the connector's SessionInfo is never sent; only the acceptor's crosses the wire
	return &remote, nil
}

// Accept runs the acceptor side of the four-step exchange over rw.
func Accept(rw io.ReadWriter, password []byte, local *wire.SessionInfo) (*wire.SessionInfo, error) {
	clientNonce, err := readFrame(rw)
	if err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}
	if len(clientNonce) != NonceSize {
		return nil, NewSessionError(ReasonHandshakeProtocol, fmt.Errorf("malformed step 1 frame"))
	}

	serverNonce, err := randomNonce()
	if err != nil {
		return nil, NewSessionError(ReasonHandshakeProtocol, err)
	}
	step2 := append(append([]byte{}, serverNonce...), proof(password, clientNonce)...)
	if err := writeFrame(rw, step2); err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}

	step3, err := readFrame(rw)
	if err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}
	if !hmac.Equal(step3, proof(password, serverNonce)) {
		return nil, NewSessionError(ReasonAuthFail, fmt.Errorf("peer failed to prove server nonce"))
	}

	infoBuf := make([]byte, wire.SessionInfoSize)
	local.Marshal(infoBuf)
	if err := writeFrame(rw, infoBuf); err != nil {
		return nil, NewSessionError(ReasonSockIO, err)
	}
	return local, nil
}
