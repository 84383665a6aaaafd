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

package bucket

import "github.com/meshrelay/rtprelay/wire"

// AudioBucket is the drop-oldest variant used for audio media: a push
// made while the queued bytes are at or above the redline first evicts
// packets from the front until the total is below it, and the new
// packet is always accepted. This favors
// recency over completeness, appropriate for a live audio stream where
// an old sample is worthless once a newer one exists.
type AudioBucket struct {
	packets      []*wire.Packet
	totalBytes   uint32
	redlineBytes uint32
}

// NewAudioBucket returns an AudioBucket with the default 8 KiB redline.
func NewAudioBucket() *AudioBucket {
	return &AudioBucket{redlineBytes: AudioRedlineBytes}
}

// PushBackAddRef implements Bucket. Unlike BaseBucket, this never
// rejects: it evicts from the front first, then always appends.
func (b *AudioBucket) PushBackAddRef(packet *wire.Packet) bool {
	if packet == nil {
		return false
	}
	for b.totalBytes >= b.redlineBytes && len(b.packets) > 0 {
		oldest := b.packets[0]
		b.totalBytes -= uint32(oldest.PayloadLen())
		b.packets = b.packets[1:]
	}
	b.packets = append(b.packets, packet)
	b.totalBytes += uint32(packet.PayloadLen())
	return true
}

// GetFront implements Bucket.
func (b *AudioBucket) GetFront() *wire.Packet {
	if len(b.packets) == 0 {
		return nil
	}
	return b.packets[0]
}

// PopFrontRelease implements Bucket.
func (b *AudioBucket) PopFrontRelease(packet *wire.Packet) {
	if packet == nil || len(b.packets) == 0 || b.packets[0] != packet {
		return
	}
	b.totalBytes -= uint32(packet.PayloadLen())
	b.packets = b.packets[1:]
}

// TotalBytes implements Bucket.
func (b *AudioBucket) TotalBytes() uint32 { return b.totalBytes }

// TotalFrames implements Bucket; reports the packet count.
func (b *AudioBucket) TotalFrames() uint32 { return uint32(len(b.packets)) }

// SetRedline implements Bucket.
func (b *AudioBucket) SetRedline(redlineBytes, _ uint32) {
	if redlineBytes > 0 {
		b.redlineBytes = redlineBytes
	}
}

// Reset implements Bucket.
func (b *AudioBucket) Reset() {
	b.packets = nil
	b.totalBytes = 0
}
