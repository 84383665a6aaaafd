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

// MmType enumerates the media multiplex type ranges used to decide
// bucket routing and reorder-window sizing.
type MmType uint8

// Media type ranges: audio/video/msg.
const (
	MmTypeMsg   MmType = 0
	MmTypeAudio MmType = 1
	MmTypeVideo MmType = 2
)

// IsMedia reports whether t is an audio or video media type (as opposed
// to a non-media / message type), used by the Session Wrapper to decide
// whether input should go through the reorder buffer.
func (t MmType) IsMedia() bool {
	return t == MmTypeAudio || t == MmTypeVideo
}

// Packet is the in-memory representation of one RTP-like frame. The wire
// form in original libpronet used manual reference counting
// (pushBackAddRef/popFrontRelease); Go expresses that as ordinary
// ownership transfer instead, so Packet carries no refcount field.
type Packet struct {
	MmType    MmType
	MmID      uint32
	Marker    bool
	Sequence  uint16
	SSRC      uint32
	Timestamp uint32
	Payload   []byte

	// KeyFrame and FirstPacketOfFrame are sender-set flag bits
	// consulted by the video bucket's key-frame gate. They carry no
	// wire representation of their own — the video encoder/demuxer
	// upstream of the bucket sets them.
	KeyFrame           bool
	FirstPacketOfFrame bool
}

// PayloadLen returns the byte length of the packet payload, used by
// bucket accounting.
func (p *Packet) PayloadLen() int {
	if p == nil {
		return 0
	}
	return len(p.Payload)
}

// Clone returns a deep copy of p so a caller can retain a packet across
// a send/drop boundary without aliasing another owner's payload slice.
func (p *Packet) Clone() *Packet {
	cp := *p
	cp.Payload = make([]byte, len(p.Payload))
	copy(cp.Payload, p.Payload)
	return &cp
}

// Encode writes the RTP header, session extension and payload of p to
// dst, returning the appended slice. hdrAndPayloadSize covers the
// extension plus the payload.
func (p *Packet) Encode(dst []byte) []byte {
	var hb [HeaderSize]byte
	h := Header{
		Version:   2,
		Marker:    p.Marker,
		Sequence:  p.Sequence,
		SSRC:      p.SSRC,
		Timestamp: p.Timestamp,
	}
	PutHeader(hb[:], &h)
	dst = append(dst, hb[:]...)

	var eb [ExtSize]byte
	ext := Ext{
		MmID:              p.MmID,
		MmType:            uint8(p.MmType),
		HdrAndPayloadSize: uint16(ExtSize + len(p.Payload)),
	}
	PutExt(eb[:], &ext)
	dst = append(dst, eb[:]...)

	return append(dst, p.Payload...)
}

// Decode parses an RTP header + extension + payload frame from b into p.
func Decode(b []byte, p *Packet) error {
	if len(b) < HeaderSize+ExtSize {
		return ErrShortHeader
	}
	var h Header
	if err := GetHeader(b[:HeaderSize], &h); err != nil {
		return err
	}
	var ext Ext
	if err := GetExt(b[HeaderSize:HeaderSize+ExtSize], &ext); err != nil {
		return err
	}
	p.Marker = h.Marker
	p.Sequence = h.Sequence
	p.SSRC = h.SSRC
	p.Timestamp = h.Timestamp
	p.MmID = ext.MmID
	p.MmType = MmType(ext.MmType)

	payloadLen := int(ext.HdrAndPayloadSize) - ExtSize
	if payloadLen < 0 {
		return ErrShortHeader
	}
	rest := b[HeaderSize+ExtSize:]
	if len(rest) < payloadLen {
		payloadLen = len(rest)
	}
	p.Payload = append(p.Payload[:0], rest[:payloadLen]...)
	return nil
}
