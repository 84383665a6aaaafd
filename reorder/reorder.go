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

// Package reorder implements the small sliding-window reassembly
// buffer: packets that arrive out of RTP
// sequence order within the window are held and released in order;
// packets that arrive too far behind the window are dropped.
package reorder

import "github.com/meshrelay/rtprelay/wire"

// Default window sizes per mmType: video tolerates more
// reordering than audio because a video frame spans many packets.
const (
	DefaultWindow = 1
	AudioWindow   = 2
	VideoWindow   = 5
)

// seqLess reports whether a is ordered before b under 16-bit RTP
// sequence-number wraparound arithmetic.
func seqLess(a, b uint16) bool {
	return int16(a-b) < 0
}

// seqDistance returns b-a as a signed distance under wraparound, i.e.
// how far forward of a, b lies.
func seqDistance(a, b uint16) int {
	return int(int16(b - a))
}

// Buffer holds packets received out of order within a bounded window
// keyed by RTP sequence number, and releases them to the caller once
// they are either next-in-order or have aged out of the window.
type Buffer struct {
	window  int
	pending map[uint16]*wire.Packet
	next    uint16
	started bool
}

// New returns a Buffer with the given window size (number of sequence
// slots tolerated before forced release).
func New(window int) *Buffer {
	if window < 1 {
		window = DefaultWindow
	}
	return &Buffer{window: window, pending: make(map[uint16]*wire.Packet)}
}

// Push admits packet into the window and returns the packets now ready
// for delivery, in sequence order. The returned slice may be empty (the
// packet was buffered, waiting on an earlier gap), contain exactly
// packet (arrived in order), or contain packet plus any buffered
// packets it unblocks.
func (b *Buffer) Push(packet *wire.Packet) []*wire.Packet {
	if packet == nil {
		return nil
	}
	if !b.started {
		b.started = true
		b.next = packet.Sequence
	}

	seq := packet.Sequence
	dist := seqDistance(b.next, seq)
	if dist < 0 {
		// Arrived behind the window's lower edge: too late, drop it.
		return nil
	}

	b.pending[seq] = packet
	if dist >= b.window {
		// Too far ahead: force-release the gap so the window can
		// advance instead of stalling forever on a lost packet.
		return b.drainForceAdvance(seq)
	}
	return b.drainInOrder()
}

// drainInOrder releases consecutive packets starting at b.next.
func (b *Buffer) drainInOrder() []*wire.Packet {
	var out []*wire.Packet
	for {
		p, ok := b.pending[b.next]
		if !ok {
			break
		}
		out = append(out, p)
		delete(b.pending, b.next)
		b.next++
	}
	return out
}

// drainForceAdvance releases everything buffered up to and including
// upTo, skipping any gaps, and advances next past upTo.
func (b *Buffer) drainForceAdvance(upTo uint16) []*wire.Packet {
	var out []*wire.Packet
	for seqLess(b.next, upTo) || b.next == upTo {
		if p, ok := b.pending[b.next]; ok {
			out = append(out, p)
			delete(b.pending, b.next)
		}
		if b.next == upTo {
			break
		}
		b.next++
	}
	b.next = upTo + 1
	return out
}

// Reset discards all buffered packets and forgets the sequence cursor.
func (b *Buffer) Reset() {
	b.pending = make(map[uint16]*wire.Packet)
	b.started = false
}

// Pending returns the number of packets currently held in the window.
func (b *Buffer) Pending() int { return len(b.pending) }
