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

package reorder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshrelay/rtprelay/wire"
)

func seqPkt(seq uint16) *wire.Packet { return &wire.Packet{Sequence: seq} }

func seqsOf(pkts []*wire.Packet) []uint16 {
	out := make([]uint16, len(pkts))
	for i, p := range pkts {
		out[i] = p.Sequence
	}
	return out
}

func TestBufferInOrderPassesThrough(t *testing.T) {
	b := New(VideoWindow)
	require.Equal(t, []uint16{1}, seqsOf(b.Push(seqPkt(1))))
	require.Equal(t, []uint16{2}, seqsOf(b.Push(seqPkt(2))))
	require.Equal(t, []uint16{3}, seqsOf(b.Push(seqPkt(3))))
}

func TestBufferReordersWithinWindow(t *testing.T) {
	b := New(VideoWindow)
	require.Equal(t, []uint16{1}, seqsOf(b.Push(seqPkt(1))))
	require.Empty(t, b.Push(seqPkt(3)))
	// 2 arrives late, unblocking the buffered 3.
	require.Equal(t, []uint16{2, 3}, seqsOf(b.Push(seqPkt(2))))
}

func TestBufferForceAdvancesPastLostPacket(t *testing.T) {
	b := New(2)
	require.Equal(t, []uint16{1}, seqsOf(b.Push(seqPkt(1))))
	// sequence 2 is lost; 4 arrives dist=2 >= window(2), forcing release.
	out := seqsOf(b.Push(seqPkt(4)))
	require.Equal(t, []uint16{4}, out)
	require.Equal(t, 0, b.Pending())
}

func TestBufferDropsPacketBehindWindow(t *testing.T) {
	b := New(VideoWindow)
	require.Equal(t, []uint16{10}, seqsOf(b.Push(seqPkt(10))))
	require.Equal(t, []uint16{11}, seqsOf(b.Push(seqPkt(11))))
	// 5 arrives well behind next(=12): dropped silently.
	require.Nil(t, b.Push(seqPkt(5)))
}

func TestBufferHandlesSequenceWraparound(t *testing.T) {
	b := New(VideoWindow)
	require.Equal(t, []uint16{65534}, seqsOf(b.Push(seqPkt(65534))))
	require.Equal(t, []uint16{65535}, seqsOf(b.Push(seqPkt(65535))))
	require.Equal(t, []uint16{0}, seqsOf(b.Push(seqPkt(0))))
	require.Equal(t, []uint16{1}, seqsOf(b.Push(seqPkt(1))))
}

func TestBufferReset(t *testing.T) {
	b := New(VideoWindow)
	b.Push(seqPkt(1))
	b.Push(seqPkt(5))
	require.NotZero(t, b.Pending())
	b.Reset()
	require.Equal(t, 0, b.Pending())
	require.Equal(t, []uint16{100}, seqsOf(b.Push(seqPkt(100))))
}
