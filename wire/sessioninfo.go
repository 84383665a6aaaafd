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

package wire

// SessionType enumerates the RTP session variants.
type SessionType uint8

// Session variants.
const (
	SessionUDP SessionType = iota
	SessionUDPEx
	SessionTCP
	SessionTCPEx
	SessionSSLEx
	SessionMcast
	SessionMcastEx
)

// String names a SessionType for logging.
func (t SessionType) String() string {
	switch t {
	case SessionUDP:
		return "udp"
	case SessionUDPEx:
		return "udp_ex"
	case SessionTCP:
		return "tcp"
	case SessionTCPEx:
		return "tcp_ex"
	case SessionSSLEx:
		return "ssl_ex"
	case SessionMcast:
		return "mcast"
	case SessionMcastEx:
		return "mcast_ex"
	default:
		return "unknown"
	}
}

// IsConnectionOriented reports whether t is one of the stream-oriented
// variants that the Session Wrapper delivers input from immediately,
// bypassing the reorder buffer.
func (t SessionType) IsConnectionOriented() bool {
	switch t {
	case SessionTCP, SessionTCPEx, SessionSSLEx:
		return true
	default:
		return false
	}
}

// PasswordHashSize and UserDataSize are the fixed sizes of the two
// opaque fields carried in SessionInfo.
const (
	PasswordHashSize = 32
	UserDataSize     = 64
)

// SessionInfo is exchanged during the _EX handshake (TCP_EX/SSL_EX).
type SessionInfo struct {
	LocalVersion  uint16
	RemoteVersion uint16
	SessionType   SessionType
	MmType        MmType
	InSrcMmID     uint32
	OutSrcMmID    uint32
	PasswordHash  [PasswordHashSize]byte
	UserData      [UserDataSize]byte
}

// SessionInfoSize is the fixed marshaled size of a SessionInfo.
const SessionInfoSize = 2 + 2 + 1 + 1 + 4 + 4 + PasswordHashSize + UserDataSize

// Marshal writes the wire form of si into b[:SessionInfoSize].
func (si *SessionInfo) Marshal(b []byte) {
	putUint16 := func(off int, v uint16) {
		b[off] = byte(v >> 8)
		b[off+1] = byte(v)
	}
	putUint32 := func(off int, v uint32) {
		b[off] = byte(v >> 24)
		b[off+1] = byte(v >> 16)
		b[off+2] = byte(v >> 8)
		b[off+3] = byte(v)
	}
	putUint16(0, si.LocalVersion)
	putUint16(2, si.RemoteVersion)
	b[4] = uint8(si.SessionType)
	b[5] = uint8(si.MmType)
	putUint32(6, si.InSrcMmID)
	putUint32(10, si.OutSrcMmID)
	copy(b[14:14+PasswordHashSize], si.PasswordHash[:])
	copy(b[14+PasswordHashSize:14+PasswordHashSize+UserDataSize], si.UserData[:])
}

// Unmarshal reads the wire form of a SessionInfo from b[:SessionInfoSize].
func (si *SessionInfo) Unmarshal(b []byte) error {
	if len(b) < SessionInfoSize {
		return ErrShortHeader
	}
	getUint16 := func(off int) uint16 { return uint16(b[off])<<8 | uint16(b[off+1]) }
	getUint32 := func(off int) uint32 {
		return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
	}
	si.LocalVersion = getUint16(0)
	si.RemoteVersion = getUint16(2)
	si.SessionType = SessionType(b[4])
	si.MmType = MmType(b[5])
	si.InSrcMmID = getUint32(6)
	si.OutSrcMmID = getUint32(10)
	copy(si.PasswordHash[:], b[14:14+PasswordHashSize])
	copy(si.UserData[:], b[14+PasswordHashSize:14+PasswordHashSize+UserDataSize])
	return nil
}
