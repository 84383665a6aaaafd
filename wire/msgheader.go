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

import (
	"encoding/binary"
	"fmt"
)

// msgHeaderFixedSize is charset(4) + publicIp(4) + reserved(4) + srcUser(8) + dstUserCount(1).
const msgHeaderFixedSize = 4 + 4 + 4 + RtpUserSize + 1

// MessageHeader is the header embedded in the payload of every packet
// that rides the messaging fabric (broker packets).
// The reserved bytes are not versioned; do not repurpose them.
type MessageHeader struct {
	Charset  uint32
	PublicIP uint32
	Reserved uint32
	SrcUser  RtpUser
	DstUsers []RtpUser
}

// Size returns the marshaled size of m, not including the body.
func (m *MessageHeader) Size() int {
	return msgHeaderFixedSize + len(m.DstUsers)*RtpUserSize
}

// Marshal appends the wire form of m to dst and returns the result.
func (m *MessageHeader) Marshal(dst []byte) ([]byte, error) {
	if len(m.DstUsers) == 0 {
		return nil, fmt.Errorf("wire: message header needs dstUserCount >= 1")
	}
	if len(m.DstUsers) > 255 {
		return nil, fmt.Errorf("wire: too many destination users: %d", len(m.DstUsers))
	}
	n := m.Size()
	start := len(dst)
	dst = append(dst, make([]byte, n)...)
	b := dst[start:]

	binary.BigEndian.PutUint32(b[0:4], m.Charset)
	binary.BigEndian.PutUint32(b[4:8], m.PublicIP)
	binary.BigEndian.PutUint32(b[8:12], m.Reserved)
	PutRtpUser(b[12:12+RtpUserSize], m.SrcUser)
	off := 12 + RtpUserSize
	b[off] = uint8(len(m.DstUsers))
	off++
	for _, u := range m.DstUsers {
		PutRtpUser(b[off:off+RtpUserSize], u)
		off += RtpUserSize
	}
	return dst, nil
}

// Unmarshal parses a MessageHeader from the front of b and returns the
// number of bytes consumed (the body starts at b[n:]).
func (m *MessageHeader) Unmarshal(b []byte) (int, error) {
	if len(b) < msgHeaderFixedSize {
		return 0, ErrShortHeader
	}
	m.Charset = binary.BigEndian.Uint32(b[0:4])
	m.PublicIP = binary.BigEndian.Uint32(b[4:8])
	m.Reserved = binary.BigEndian.Uint32(b[8:12])
	src, err := GetRtpUser(b[12 : 12+RtpUserSize])
	if err != nil {
		return 0, err
	}
	m.SrcUser = src
	off := 12 + RtpUserSize
	count := int(b[off])
	off++
	if count < 1 {
		return 0, fmt.Errorf("wire: dstUserCount must be >= 1, got %d", count)
	}
	need := off + count*RtpUserSize
	if len(b) < need {
		return 0, ErrShortHeader
	}
	m.DstUsers = make([]RtpUser, count)
	for i := 0; i < count; i++ {
		u, err := GetRtpUser(b[off : off+RtpUserSize])
		if err != nil {
			return 0, err
		}
		m.DstUsers[i] = u
		off += RtpUserSize
	}
	return off, nil
}
