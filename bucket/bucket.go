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

// Package bucket implements the per-session send queues with
// media-aware eviction: a bounded FIFO for
// generic traffic, drop-oldest for audio, and a key-frame gated,
// frame-boundary-aware queue for video.
package bucket

import "github.com/meshrelay/rtprelay/wire"

// Default redlines.
const (
	BaseRedlineBytes  = 1024 * 1024
	AudioRedlineBytes = 1024 * 8
	VideoRedlineBytes = 1024 * 1024
	VideoRedlineFrame = 10

	// MaxFrameBytes bounds a single waiting video frame: 1920x1080 4:2:0
	// at 12 bits/pixel.
	MaxFrameBytes = 1920 * 1080 * 3 / 2
)

// Bucket is the interface shared by all flow-control queue variants.
type Bucket interface {
	// PushBackAddRef offers a packet for enqueue. Ownership of packet
	// transfers to the bucket only if accepted is true.
	PushBackAddRef(packet *wire.Packet) (accepted bool)
	// GetFront returns the next packet to send without removing it, or
	// nil if the bucket is empty.
	GetFront() *wire.Packet
	// PopFrontRelease removes packet from the front of the bucket. The
	// caller must pass the packet most recently returned by GetFront.
	PopFrontRelease(packet *wire.Packet)
	// TotalBytes is the sum of payload sizes of all retained packets.
	TotalBytes() uint32
	// TotalFrames is len(frames) + [waiting] + [sending], meaningful
	// only for the video bucket; generic/audio buckets report the
	// packet count.
	TotalFrames() uint32
	// SetRedline updates the soft caps; zero leaves a field unchanged.
	SetRedline(redlineBytes, redlineFrames uint32)
	// Reset discards all retained packets and restores initial state.
	Reset()
}

// BaseBucket is the generic, non-media-aware bucket: it rejects new
// packets once totalBytes reaches the redline.
type BaseBucket struct {
	packets      []*wire.Packet
	totalBytes   uint32
	redlineBytes uint32
}

// NewBaseBucket returns a BaseBucket with the default 1 MiB redline.
func NewBaseBucket() *BaseBucket {
	return &BaseBucket{redlineBytes: BaseRedlineBytes}
}

// PushBackAddRef implements Bucket.
func (b *BaseBucket) PushBackAddRef(packet *wire.Packet) bool {
	if packet == nil {
		return false
	}
	if b.totalBytes >= b.redlineBytes {
		return false
	}
	b.packets = append(b.packets, packet)
	b.totalBytes += uint32(packet.PayloadLen())
	return true
}

// GetFront implements Bucket.
func (b *BaseBucket) GetFront() *wire.Packet {
	if len(b.packets) == 0 {
		return nil
	}
	return b.packets[0]
}

// PopFrontRelease implements Bucket.
func (b *BaseBucket) PopFrontRelease(packet *wire.Packet) {
	if packet == nil || len(b.packets) == 0 || b.packets[0] != packet {
		return
	}
	b.totalBytes -= uint32(packet.PayloadLen())
	b.packets = b.packets[1:]
}

// TotalBytes implements Bucket.
func (b *BaseBucket) TotalBytes() uint32 { return b.totalBytes }

// TotalFrames implements Bucket; for the generic bucket this is the
// packet count.
func (b *BaseBucket) TotalFrames() uint32 { return uint32(len(b.packets)) }

// SetRedline implements Bucket.
func (b *BaseBucket) SetRedline(redlineBytes, _ uint32) {
	if redlineBytes > 0 {
		b.redlineBytes = redlineBytes
	}
}

// Reset implements Bucket.
func (b *BaseBucket) Reset() {
	b.packets = nil
	b.totalBytes = 0
}

// New returns the bucket variant appropriate for mmType and sessionType:
// audio media types always get drop-oldest behavior, video gets the key-frame gate
// only on the connection-oriented _EX variants (the ones that can
// reliably carry the gate's backlog without datagram loss undermining
// it), everything else gets the generic bucket.
func New(mmType wire.MmType, sessionType wire.SessionType) Bucket {
	switch mmType {
	case wire.MmTypeAudio:
		return NewAudioBucket()
	case wire.MmTypeVideo:
		switch sessionType {
		case wire.SessionTCPEx, wire.SessionSSLEx:
			return NewVideoBucket()
		default:
			return NewBaseBucket()
		}
	default:
		return NewBaseBucket()
	}
}
