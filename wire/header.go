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

// Package wire implements the on-the-wire RTP-like header, its
// session extension and the identities carried inside it.
package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the length in bytes of the fixed RTP header (v=2, p=x=cc=0).
const HeaderSize = 12

// ExtSize is the length in bytes of the session extension that follows
// the RTP header: mmId(4) + mmType(1) + reserved(1) + hdrAndPayloadSize(2).
const ExtSize = 8

// ErrShortHeader is returned when a buffer is too small to hold a header.
var ErrShortHeader = errors.New("wire: buffer shorter than header")

// Header is the 12-byte fixed RTP header. Packet.Encode always writes
// v=2, p=x=cc=0; decoding keeps whatever the sender wrote.
type Header struct {
	Version   uint8 // top 2 bits of byte 0, always 2
	Padding   bool
	Extension bool
	CC        uint8 // 4 bits
	Marker    bool
	PT        uint8 // 7 bits payload type
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32
}

// Ext is the 8-byte extension following the RTP header that carries the
// session-layer routing fields not present in plain RTP.
type Ext struct {
	MmID              uint32
	MmType            uint8
	Reserved          uint8
	HdrAndPayloadSize uint16
}

// PutHeader marshals h into b[:HeaderSize]. b must have length >= HeaderSize.
func PutHeader(b []byte, h *Header) {
	b[0] = (h.Version << 6)
	if h.Padding {
		b[0] |= 1 << 5
	}
	if h.Extension {
		b[0] |= 1 << 4
	}
	b[0] |= h.CC & 0x0f

	b[1] = h.PT & 0x7f
	if h.Marker {
		b[1] |= 1 << 7
	}

	binary.BigEndian.PutUint16(b[2:4], h.Sequence)
	binary.BigEndian.PutUint32(b[4:8], h.Timestamp)
	binary.BigEndian.PutUint32(b[8:12], h.SSRC)
}

// GetHeader unmarshals b[:HeaderSize] into h. b must have length >= HeaderSize.
func GetHeader(b []byte, h *Header) error {
	if len(b) < HeaderSize {
		return ErrShortHeader
	}
	h.Version = b[0] >> 6
	h.Padding = b[0]&(1<<5) != 0
	h.Extension = b[0]&(1<<4) != 0
	h.CC = b[0] & 0x0f
	h.Marker = b[1]&(1<<7) != 0
	h.PT = b[1] & 0x7f
	h.Sequence = binary.BigEndian.Uint16(b[2:4])
	h.Timestamp = binary.BigEndian.Uint32(b[4:8])
	h.SSRC = binary.BigEndian.Uint32(b[8:12])
	return nil
}

// PutExt marshals e into b[:ExtSize], all fields in network byte order.
func PutExt(b []byte, e *Ext) {
	binary.BigEndian.PutUint32(b[0:4], e.MmID)
	b[4] = e.MmType
	b[5] = e.Reserved
	binary.BigEndian.PutUint16(b[6:8], e.HdrAndPayloadSize)
}

// GetExt unmarshals b[:ExtSize] into e.
func GetExt(b []byte, e *Ext) error {
	if len(b) < ExtSize {
		return ErrShortHeader
	}
	e.MmID = binary.BigEndian.Uint32(b[0:4])
	e.MmType = b[4]
	e.Reserved = b[5]
	e.HdrAndPayloadSize = binary.BigEndian.Uint16(b[6:8])
	return nil
}

// ForceTCPFraming resets the framing fields of h to v=2, p=x=cc=0. No
// receive path in this module calls it.
func (h *Header) ForceTCPFraming() {
	h.Version = 2
	h.Padding = false
	h.Extension = false
	h.CC = 0
}
