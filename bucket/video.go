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

// videoFrame groups the packets of one encoded video frame while it is
// waiting to be completed, queued, or sent.
type videoFrame struct {
	packets  []*wire.Packet
	bytes    uint32
	keyFrame bool
}

// VideoBucket gates video packets behind a key-frame barrier: no packet
// is accepted until a full key frame starts the stream, non-key frames
// are queued only while within the byte/frame redline, and an arriving
// key frame flushes any queued backlog (decoders cannot use stale
// non-key frames once a fresher key frame exists).
type VideoBucket struct {
	waitingFrame *videoFrame
	frames       []*videoFrame
	sendingFrame *videoFrame

	totalBytes  uint32
	totalFrames uint32

	needKeyFrame bool
	nextSeq      uint16
	ssrc         uint32

	redlineBytes  uint32
	redlineFrames uint32

	// strictVideoStream enables the ssrc/sequence continuity checks
	// that CRtpVideoBucket::PushBackAddRef computed but never acted
	// on (both guarded by `if (0)` in rtp_bucket.cpp). Default false
	// reproduces the observable original behavior; set true to make
	// a desynced ssrc or sequence gap force a key-frame resync instead
	// of silently passing through.
	strictVideoStream bool
}

// NewVideoBucket returns a VideoBucket with the default redlines and
// waiting for an initial key frame.
func NewVideoBucket() *VideoBucket {
	return &VideoBucket{
		redlineBytes:  VideoRedlineBytes,
		redlineFrames: VideoRedlineFrame,
		needKeyFrame:  true,
	}
}

// SetStrictVideoStream enables or disables the opt-in ssrc/sequence
// continuity gate.
func (v *VideoBucket) SetStrictVideoStream(strict bool) {
	v.strictVideoStream = strict
}

// PushBackAddRef implements Bucket.
func (v *VideoBucket) PushBackAddRef(packet *wire.Packet) bool {
	if packet == nil {
		return false
	}
	marker := packet.Marker
	keyFrame := packet.KeyFrame
	firstPacket := packet.FirstPacketOfFrame

	if v.needKeyFrame {
		if !(keyFrame && firstPacket) {
			return false
		}
		v.needKeyFrame = false
	}
	if keyFrame && firstPacket {
		v.nextSeq = packet.Sequence
		v.ssrc = packet.SSRC
	}

	if v.strictVideoStream {
		if packet.SSRC != v.ssrc || packet.Sequence != v.nextSeq {
			v.needKeyFrame = true
			return false
		}
		v.nextSeq++
	}

	if firstPacket {
		if v.waitingFrame != nil {
			v.totalBytes -= v.waitingFrame.bytes
			v.totalFrames--
			v.waitingFrame = nil
		}
		v.waitingFrame = &videoFrame{keyFrame: keyFrame}
		v.totalFrames++
	} else if v.waitingFrame == nil {
		v.needKeyFrame = true
		return false
	}

	sz := uint32(packet.PayloadLen())
	v.waitingFrame.packets = append(v.waitingFrame.packets, packet)
	v.waitingFrame.bytes += sz
	v.totalBytes += sz

	if !marker {
		if v.waitingFrame.bytes >= MaxFrameBytes {
			v.discardWaitingFrame()
			v.needKeyFrame = true
			return false
		}
		return true
	}

	if !v.waitingFrame.keyFrame {
		if v.totalBytes <= v.redlineBytes && v.totalFrames <= v.redlineFrames {
			v.frames = append(v.frames, v.waitingFrame)
			v.waitingFrame = nil
			return true
		}
		v.discardWaitingFrame()
		v.needKeyFrame = true
		return false
	}

	// A completed key frame invalidates any queued backlog: downstream
	// decoders can resync from it, so stale non-key frames are useless.
	for _, f := range v.frames {
		v.totalBytes -= f.bytes
		v.totalFrames--
	}
	v.frames = v.frames[:0]
	v.frames = append(v.frames, v.waitingFrame)
	v.waitingFrame = nil
	return true
}

func (v *VideoBucket) discardWaitingFrame() {
	v.totalBytes -= v.waitingFrame.bytes
	v.totalFrames--
	v.waitingFrame = nil
}

// GetFront implements Bucket.
func (v *VideoBucket) GetFront() *wire.Packet {
	if v.sendingFrame != nil && len(v.sendingFrame.packets) == 0 {
		v.sendingFrame = nil
		v.totalFrames--
	}
	if v.sendingFrame == nil {
		if len(v.frames) == 0 {
			return nil
		}
		v.sendingFrame = v.frames[0]
		v.frames = v.frames[1:]
	}
	if len(v.sendingFrame.packets) == 0 {
		return nil
	}
	return v.sendingFrame.packets[0]
}

// PopFrontRelease implements Bucket.
func (v *VideoBucket) PopFrontRelease(packet *wire.Packet) {
	if v.sendingFrame == nil || len(v.sendingFrame.packets) == 0 || v.sendingFrame.packets[0] != packet {
		return
	}
	sz := uint32(packet.PayloadLen())
	v.totalBytes -= sz
	v.sendingFrame.bytes -= sz
	v.sendingFrame.packets = v.sendingFrame.packets[1:]
	if len(v.sendingFrame.packets) == 0 {
		v.sendingFrame = nil
		v.totalFrames--
	}
}

// TotalBytes implements Bucket.
func (v *VideoBucket) TotalBytes() uint32 { return v.totalBytes }

// TotalFrames implements Bucket: counts the waiting frame (if any), all
// queued frames, and the frame currently draining.
func (v *VideoBucket) TotalFrames() uint32 { return v.totalFrames }

// SetRedline implements Bucket.
func (v *VideoBucket) SetRedline(redlineBytes, redlineFrames uint32) {
	if redlineBytes > 0 {
		v.redlineBytes = redlineBytes
	}
	if redlineFrames > 0 {
		v.redlineFrames = redlineFrames
	}
}

// Reset implements Bucket.
func (v *VideoBucket) Reset() {
	v.waitingFrame = nil
	v.frames = nil
	v.sendingFrame = nil
	v.totalBytes = 0
	v.totalFrames = 0
	v.needKeyFrame = true
	v.nextSeq = 0
	v.ssrc = 0
}
